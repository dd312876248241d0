// Package settings 提供"是否启用假期余额"开关。每次操作开始时读取一次，操作期间保持不变。
package settings

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const ptoBalancesKey = "roster:settings:pto_balances_enabled"

type Source interface {
	PTOBalancesEnabled(ctx context.Context) (bool, error)
	SetPTOBalancesEnabled(ctx context.Context, enabled bool) error
}

type Static struct {
	enabled atomic.Bool
}

func NewStatic(enabled bool) *Static {
	s := &Static{}
	s.enabled.Store(enabled)
	return s
}

func (s *Static) PTOBalancesEnabled(context.Context) (bool, error) {
	return s.enabled.Load(), nil
}

func (s *Static) SetPTOBalancesEnabled(_ context.Context, enabled bool) error {
	s.enabled.Store(enabled)
	return nil
}

// Redis 以 redis 中的值为准，未设置时使用配置文件中的默认值
type Redis struct {
	rdb      *redis.Client
	fallback bool
}

func NewRedis(rdb *redis.Client, fallback bool) *Redis {
	return &Redis{rdb: rdb, fallback: fallback}
}

func (s *Redis) PTOBalancesEnabled(ctx context.Context) (bool, error) {
	v, err := s.rdb.Get(ctx, ptoBalancesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.fallback, nil
		}
		return false, err
	}
	return strconv.ParseBool(v)
}

func (s *Redis) SetPTOBalancesEnabled(ctx context.Context, enabled bool) error {
	return s.rdb.Set(ctx, ptoBalancesKey, strconv.FormatBool(enabled), 0).Err()
}
