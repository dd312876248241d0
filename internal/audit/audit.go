// Package audit 将影响余额或搭档关系的操作写入审计日志。
//
// 审计是尽力而为的次要写入：发布失败只向调用方报告，不会回滚主事务。
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Queue = "audit_queue"

type Recorder interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error
}

// Report 写入审计日志，失败只记录警告并返回给调用方展示，不影响已提交的事务
func Report(ctx context.Context, rec Recorder, logger *slog.Logger, entry *domain.AuditEntry) []string {
	if err := rec.Record(ctx, entry); err != nil {
		logger.Warn("审计日志写入失败",
			slog.String("action", string(entry.ActionType)),
			slog.Int64("officer_id", entry.OfficerID),
			slog.String("error", err.Error()),
		)
		return []string{"审计日志写入失败: " + err.Error()}
	}
	return nil
}

func prepare(entry *domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
}

/**********************************************
 * RabbitMQ
 **********************************************/

type Publisher struct {
	ch             *amqp.Channel
	queue          string
	publishTimeout time.Duration
}

func NewPublisher(ch *amqp.Channel, queue string, publishTimeout time.Duration) *Publisher {
	return &Publisher{ch: ch, queue: queue, publishTimeout: publishTimeout}
}

// DeclareQueue 声明持久化的审计队列，api 与 audit worker 启动时都会调用
func DeclareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // 持久化
		false, // 不自动删除
		false, // 非独占
		false, // 等待确认
		nil,
	)
	return err
}

func (p *Publisher) Record(ctx context.Context, entry *domain.AuditEntry) error {
	prepare(entry)

	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.ID,
			Timestamp:    entry.OccurredAt,
			Body:         body,
		},
	)
}

/**********************************************
 * 内存实现
 **********************************************/

type Memory struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func NewMemory() *Memory {
	return &Memory{}
}

// FailWith 之后的 Record 都返回 err，传入 nil 恢复正常
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Record(_ context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	prepare(entry)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *Memory) Entries() []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...)
}
