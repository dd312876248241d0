package store

import (
	"context"
	"errors"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
)

// Wrap 将存储层错误转换为带上下文的 domain.Error；已是 domain.Error 的原样返回
func Wrap(scope domain.Scope, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, ErrNotFound):
		e := scope.Validation(domain.ErrOfficerOrShiftNotFound, "", "")
		e.Cause = err
		return e
	case errors.Is(err, ErrTransient), errors.Is(err, ErrVersionConflict),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return scope.Transient(err)
	}

	// 约束冲突等不可重试的存储错误，整个事务已回滚
	e := scope.Consistency(domain.ErrStoreRejected, "")
	e.Cause = err
	return e
}
