package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	scope := domain.Scope{OfficerID: 4, Date: time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC), ShiftTypeID: 2}
	constraint := errors.New("duplicate key value violates unique constraint")

	tests := []struct {
		name     string
		err      error
		kind     domain.ErrorKind
		sentinel error
	}{
		{"记录不存在", ErrNotFound, domain.KindValidation, domain.ErrOfficerOrShiftNotFound},
		{"暂时性错误", fmt.Errorf("%w: 40001", ErrTransient), domain.KindTransientStore, domain.ErrTransientStore},
		{"版本冲突", ErrVersionConflict, domain.KindTransientStore, domain.ErrTransientStore},
		{"超时", context.DeadlineExceeded, domain.KindTransientStore, domain.ErrTransientStore},
		{"其他存储错误", constraint, domain.KindConsistency, domain.ErrStoreRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(scope, tt.err)

			var de *domain.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.kind, de.Kind)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, int64(4), de.OfficerID)
			assert.Equal(t, int64(2), de.ShiftTypeID)
			assert.Equal(t, scope.Date, de.Date)
		})
	}

	assert.NoError(t, Wrap(scope, nil))

	already := scope.BusinessRule(domain.ErrInsufficientBalance, "")
	assert.Same(t, already, Wrap(domain.Scope{}, already))
}
