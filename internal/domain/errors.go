package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindBusinessRule   ErrorKind = "business_rule"
	KindConsistency    ErrorKind = "consistency"
	KindTransientStore ErrorKind = "transient_store"
)

var (
	ErrInvalidTimeRange       = errors.New("invalid time range")
	ErrOfficerOrShiftNotFound = errors.New("officer or shift not found")
	ErrInvalidLeaveType       = errors.New("invalid leave type")
	ErrPTONotFound            = errors.New("pto exception not found")

	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrProbationaryPairing  = errors.New("probationary officers cannot be paired with each other")
	ErrNotEmergencyEligible = errors.New("officer is not eligible for emergency reassignment")
	ErrCandidateIneligible  = errors.New("candidate is not eligible for emergency reassignment")
	ErrEmergencyBondMissing = errors.New("emergency bond not found")

	ErrPartnershipMissing    = errors.New("expected partnership record is missing")
	ErrPartnershipDuplicated = errors.New("partnership record is duplicated")
	ErrStoreRejected         = errors.New("store rejected the operation")

	ErrTransientStore = errors.New("transient store failure")
	ErrSlotBusy       = errors.New("another operation is in progress for this shift")
)

// Error 携带警员、日期、班次等上下文，方便直接展示给用户
type Error struct {
	Kind        ErrorKind
	Err         error
	Cause       error
	OfficerID   int64
	Date        time.Time
	ShiftTypeID int64
	Field       string
	Detail      string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	var ctx []string
	if e.OfficerID != 0 {
		ctx = append(ctx, fmt.Sprintf("officer=%d", e.OfficerID))
	}
	if !e.Date.IsZero() {
		ctx = append(ctx, "date="+DateKey(e.Date))
	}
	if e.ShiftTypeID != 0 {
		ctx = append(ctx, fmt.Sprintf("shift=%d", e.ShiftTypeID))
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Scope 是错误上下文，引擎中的每个操作都会构造一个
type Scope struct {
	OfficerID   int64
	Date        time.Time
	ShiftTypeID int64
}

func (s Scope) err(kind ErrorKind, sentinel error, field, detail string) *Error {
	return &Error{
		Kind:        kind,
		Err:         sentinel,
		OfficerID:   s.OfficerID,
		Date:        s.Date,
		ShiftTypeID: s.ShiftTypeID,
		Field:       field,
		Detail:      detail,
	}
}

func (s Scope) Validation(sentinel error, field, detail string) *Error {
	return s.err(KindValidation, sentinel, field, detail)
}

func (s Scope) BusinessRule(sentinel error, detail string) *Error {
	return s.err(KindBusinessRule, sentinel, "", detail)
}

func (s Scope) Consistency(sentinel error, detail string) *Error {
	return s.err(KindConsistency, sentinel, "", detail)
}

func (s Scope) Transient(cause error) *Error {
	e := s.err(KindTransientStore, ErrTransientStore, "", "")
	e.Cause = cause
	return e
}

// KindOf 返回错误的分类，非 *Error 返回空字符串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable 调用方可以整体重试该事务，引擎本身从不自动重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientStore
}

// InsufficientBalanceDetail 构造余额不足时的提示信息
func InsufficientBalanceDetail(leave LeaveType, available, requested fmt.Stringer) string {
	return fmt.Sprintf("%s balance %s hours, requested %s hours", leave, available, requested)
}
