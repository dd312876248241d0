// Package store 定义排班引擎与持久化层之间的契约。
//
// 引擎只通过 Store 读写数据；所有多记录写入都在 TxStore.WithTx 中完成，
// fn 返回错误时整个事务回滚，不会留下半挂起的搭档关系。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 乐观锁冲突：记录已被其他操作修改
	ErrVersionConflict = errors.New("version conflict")
	// ErrTransient 可重试的存储层故障（序列化失败、死锁、连接中断等）
	ErrTransient = errors.New("transient store error")
)

type AssignmentFilter struct {
	OfficerID     *int64
	PartnerID     *int64
	ShiftTypeID   *int64
	Date          *time.Time
	ScheduleTypes []domain.ScheduleType
}

// BondFilter 匹配 Date 当天的按日搭档以及 Date 所在星期的循环搭档
type BondFilter struct {
	OfficerID   *int64
	ShiftTypeID int64
	Date        time.Time
	Kind        *domain.BondKind
}

type LogFilter struct {
	OfficerID      *int64
	PartnerID      *int64
	Date           *time.Time
	ShiftTypeID    *int64
	ExceptionType  *domain.ExceptionType
	UnresolvedOnly bool
}

type Store interface {
	GetOfficer(ctx context.Context, id int64) (*domain.Officer, error)
	ListOfficers(ctx context.Context) ([]*domain.Officer, error)
	// UpdateOfficerBalance 仅在 version 匹配时写入，返回新的 version
	UpdateOfficerBalance(ctx context.Context, officerID int64, leave domain.LeaveType, hours decimal.Decimal, version int32) (int32, error)

	GetShiftType(ctx context.Context, id int64) (*domain.ShiftType, error)

	FindAssignments(ctx context.Context, f AssignmentFilter) ([]*domain.ScheduleAssignment, error)
	// WorkingOfficerIDs 返回在该日期该班次排了班的警员（含循环模板和按日例外，不排除请假者）
	WorkingOfficerIDs(ctx context.Context, date time.Time, shiftTypeID int64) ([]int64, error)
	// UpsertAssignment 以 (officer, date, shift, schedule_type) 为键插入或覆盖按日例外
	UpsertAssignment(ctx context.Context, a *domain.ScheduleAssignment) error
	DeleteAssignments(ctx context.Context, f AssignmentFilter) (int64, error)
	CountRecentAssignments(ctx context.Context, from, to time.Time) (map[int64]int, error)

	FindBonds(ctx context.Context, f BondFilter) ([]*domain.PartnershipBond, error)
	InsertBond(ctx context.Context, b *domain.PartnershipBond) error
	DeleteBond(ctx context.Context, id int64) error

	InsertPartnershipLog(ctx context.Context, l *domain.PartnershipExceptionLog) error
	FindPartnershipLogs(ctx context.Context, f LogFilter) ([]*domain.PartnershipExceptionLog, error)
	ResolvePartnershipLogs(ctx context.Context, f LogFilter, resolvedBy string, at time.Time) (int64, error)
}

type TxStore interface {
	Store

	// WithTx 在一个事务中执行 fn，fn 返回错误则回滚，否则提交
	WithTx(ctx context.Context, fn func(Store) error) error
}

func Int64(v int64) *int64 { return &v }

func Time(t time.Time) *time.Time { return &t }
