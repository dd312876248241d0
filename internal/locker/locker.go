// Package locker 为 (日期, 班次) 提供互斥锁，防止两个主管同时修改同一班次的搭档关系。
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrBusy = errors.New("slot is locked by another operation")

type Locker interface {
	// Acquire 获取锁，已被占用时立即返回 ErrBusy；release 可以安全地重复调用
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func SlotKey(date time.Time, shiftTypeID int64) string {
	return fmt.Sprintf("roster:lock:slot:%s:%d", date.Format(time.DateOnly), shiftTypeID)
}

/**********************************************
 * Redis
 **********************************************/

// 只有持有者（token 一致）才能释放锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	rdb        *redis.Client
	expiration time.Duration
}

func NewRedis(rdb *redis.Client, expiration time.Duration) *Redis {
	return &Redis{rdb: rdb, expiration: expiration}
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.expiration).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经取消，释放锁时使用独立的超时
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
		})
	}, nil
}

/**********************************************
 * 内存实现
 **********************************************/

type Memory struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]bool)}
}

func (l *Memory) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrBusy
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}, nil
}

// Held 判断 key 当前是否被持有
func (l *Memory) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

// Slot 获取 (日期, 班次) 锁，并把错误转换为带上下文的 domain.Error
func Slot(ctx context.Context, l Locker, scope domain.Scope) (func(), error) {
	release, err := l.Acquire(ctx, SlotKey(scope.Date, scope.ShiftTypeID))
	if err == nil {
		return release, nil
	}
	e := scope.Transient(err)
	if errors.Is(err, ErrBusy) {
		e.Err = domain.ErrSlotBusy
	}
	return nil, e
}
