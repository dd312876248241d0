package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/precinct-ops/duty-roster/backend/internal/config"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

// querier 同时由 *sql.DB 和 *sql.Tx 实现
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
	q      querier
}

var _ store.TxStore = (*Repository)(nil)

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
		q:      dbpool,
	}
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}

// WithTx 以 serializable 隔离级别执行 fn；序列化冲突会被转换为 store.ErrTransient，由调用方决定是否重试
func (r *Repository) WithTx(ctx context.Context, fn func(store.Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return translate(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&Repository{cfg: r.cfg, dbpool: r.dbpool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translate(err)
	}

	return nil
}

// 可以整体重试的 postgres 错误码
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
}

// translate 将数据库错误转换为 store 包中的哨兵错误
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case errors.As(err, &pgErr) && transientCodes[pgErr.Code]:
		return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Message)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	return err
}
