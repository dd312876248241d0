package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink 审计记录的最终落地位置
type Sink interface {
	InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}

// Handle 处理一条审计消息：成功则 ack；消息无法解析则丢弃；存储暂时不可用则重新入队
func Handle(ctx context.Context, msg amqp.Delivery, sink Sink, logger *slog.Logger) {
	entry := &domain.AuditEntry{}
	if err := json.Unmarshal(msg.Body, entry); err != nil || entry.ID == "" {
		logger.Error("审计消息无法解析，已丢弃", slog.String("message_id", msg.MessageId), slog.Any("error", err))
		_ = msg.Nack(false, false)
		return
	}

	if err := sink.InsertAuditEntry(ctx, entry); err != nil {
		requeue := errors.Is(err, store.ErrTransient)
		logger.Error("审计记录写入失败", slog.String("id", entry.ID), slog.Bool("requeue", requeue), slog.String("error", err.Error()))
		_ = msg.Nack(false, requeue)
		return
	}

	_ = msg.Ack(false)
}

// Consume 持续消费直到 ctx 取消或通道关闭
func Consume(ctx context.Context, msgs <-chan amqp.Delivery, sink Sink, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			Handle(ctx, msg, sink, logger)
		}
	}
}
