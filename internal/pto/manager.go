// Package pto 负责请假例外的创建、修改与撤销，以及对应的余额扣除与退回。
package pto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/locker"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/settings"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/precinct-ops/duty-roster/backend/internal/utils"
	"github.com/shopspring/decimal"
)

type Manager struct {
	store    store.TxStore
	ledger   *partnership.Ledger
	locker   locker.Locker
	settings settings.Source
	audit    audit.Recorder
	logger   *slog.Logger
}

func NewManager(s store.TxStore, ledger *partnership.Ledger, lk locker.Locker, src settings.Source, rec audit.Recorder, logger *slog.Logger) *Manager {
	return &Manager{
		store:    s,
		ledger:   ledger,
		locker:   lk,
		settings: src,
		audit:    rec,
		logger:   logger,
	}
}

type AssignRequest struct {
	OfficerID   int64
	Date        time.Time
	ShiftTypeID int64
	LeaveType   domain.LeaveType
	// FullShift 为 false 时使用 StartTime/EndTime 指定的部分时段
	FullShift bool
	StartTime string
	EndTime   string
	Actor     string
}

type AssignResult struct {
	Exception                *domain.ScheduleAssignment `json:"exception"`
	Replaced                 bool                       `json:"replaced"`
	BondSuspended            bool                       `json:"bondSuspended"`
	PartnerID                *int64                     `json:"partnerID"`
	PartnerState             partnership.State          `json:"partnerState,omitempty"`
	PartnerEmergencyEligible bool                       `json:"partnerEmergencyEligible"`
	DissolvedEmergency       *domain.PartnershipBond    `json:"dissolvedEmergency,omitempty"`
	RestoredOfficerID        *int64                     `json:"restoredOfficerID,omitempty"`
	BalancesEnabled          bool                       `json:"balancesEnabled"`
	Balance                  *decimal.Decimal           `json:"balance,omitempty"`
	Warnings                 []string                   `json:"warnings,omitempty"`
}

type RemoveRequest struct {
	OfficerID   int64
	Date        time.Time
	ShiftTypeID int64
	Actor       string
}

type RemoveResult struct {
	Removed           []*domain.ScheduleAssignment `json:"removed"`
	Restored          bool                         `json:"restored"`
	EmergencyRetained bool                         `json:"emergencyRetained"`
	NowSuspended      bool                         `json:"nowSuspended"`
	PartnerID         *int64                       `json:"partnerID"`
	StandInID         *int64                       `json:"standInID"`
	BalancesEnabled   bool                         `json:"balancesEnabled"`
	Warnings          []string                     `json:"warnings,omitempty"`
}

type balanceSnapshot struct {
	Vacation decimal.Decimal `json:"vacation"`
	Sick     decimal.Decimal `json:"sick"`
	Comp     decimal.Decimal `json:"comp"`
	Holiday  decimal.Decimal `json:"holiday"`
}

func snapshotOf(o *domain.Officer) balanceSnapshot {
	return balanceSnapshot{
		Vacation: o.VacationHours,
		Sick:     o.SickHours,
		Comp:     o.CompHours,
		Holiday:  o.HolidayHours,
	}
}

type auditState struct {
	Balances   balanceSnapshot              `json:"balances"`
	Exceptions []*domain.ScheduleAssignment `json:"exceptions"`
}

// AssignOrUpdatePTO 为警员在该日期该班次登记请假；已有请假记录时先退回原扣除再整体替换
func (m *Manager) AssignOrUpdatePTO(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	date := domain.Day(req.Date)
	scope := domain.Scope{OfficerID: req.OfficerID, Date: date, ShiftTypeID: req.ShiftTypeID}

	if req.Date.IsZero() {
		return nil, scope.Validation(domain.ErrInvalidTimeRange, "date", "日期不能为空")
	}
	if !req.LeaveType.Valid() {
		return nil, scope.Validation(domain.ErrInvalidLeaveType, "leaveType", string(req.LeaveType))
	}

	release, err := locker.Slot(ctx, m.locker, scope)
	if err != nil {
		return nil, err
	}
	defer release()

	enabled, err := m.settings.PTOBalancesEnabled(ctx)
	if err != nil {
		return nil, scope.Transient(err)
	}

	shift, err := m.store.GetShiftType(ctx, req.ShiftTypeID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	hours, partial, err := leaveHours(scope, shift, req)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{BalancesEnabled: enabled}
	var before, after auditState

	err = m.store.WithTx(ctx, func(tx store.Store) error {
		officer, err := tx.GetOfficer(ctx, req.OfficerID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		before.Balances = snapshotOf(officer)

		existing, err := partnership.PTORecords(ctx, tx, req.OfficerID, date, req.ShiftTypeID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		before.Exceptions = existing
		result.Replaced = len(existing) > 0

		changed := refund(officer, existing)

		if _, err := tx.DeleteAssignments(ctx, store.AssignmentFilter{
			OfficerID:     store.Int64(req.OfficerID),
			ShiftTypeID:   store.Int64(req.ShiftTypeID),
			Date:          store.Time(date),
			ScheduleTypes: []domain.ScheduleType{domain.SchedulePTO},
		}); err != nil {
			return store.Wrap(scope, err)
		}

		if enabled {
			available := officer.Balance(req.LeaveType)
			if hours.GreaterThan(available) {
				e := scope.BusinessRule(domain.ErrInsufficientBalance,
					domain.InsufficientBalanceDetail(req.LeaveType, available, hours))
				e.Field = "leaveType"
				return e
			}
			officer.SetBalance(req.LeaveType, available.Sub(hours))
			changed[req.LeaveType] = true
		}

		if err := writeBalances(ctx, tx, officer, changed); err != nil {
			return store.Wrap(scope, err)
		}

		reason := fmt.Sprintf("搭档 %s 请假（%s）", officer.FullName, req.LeaveType)
		outcome, err := m.ledger.TakeLeave(ctx, tx, req.OfficerID, date, req.ShiftTypeID, reason, req.Actor)
		if err != nil {
			return err
		}

		exception := &domain.ScheduleAssignment{
			OfficerID:       req.OfficerID,
			ShiftTypeID:     req.ShiftTypeID,
			Date:            store.Time(date),
			IsOff:           true,
			ScheduleType:    domain.SchedulePTO,
			LeaveType:       req.LeaveType,
			Hours:           hours,
			IsPartialShift:  partial,
			BalanceDeducted: enabled,
			CreatedAt:       m.ledger.Now(),
		}
		if partial {
			exception.CustomStartTime = &req.StartTime
			exception.CustomEndTime = &req.EndTime
		}
		if outcome.BondSuspended {
			exception.PartnerOfficerID = outcome.PartnerID
			exception.IsPartnership = true
		}
		if err := tx.UpsertAssignment(ctx, exception); err != nil {
			return store.Wrap(scope, err)
		}

		after.Balances = snapshotOf(officer)
		after.Exceptions = []*domain.ScheduleAssignment{exception}

		result.Exception = exception
		result.BondSuspended = outcome.BondSuspended
		result.PartnerID = outcome.PartnerID
		result.PartnerState = outcome.PartnerState
		result.PartnerEmergencyEligible = outcome.EmergencyEligible
		result.DissolvedEmergency = outcome.DissolvedEmergency
		result.RestoredOfficerID = outcome.RestoredOf
		if enabled {
			balance := officer.Balance(req.LeaveType)
			result.Balance = &balance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("请假已登记",
		slog.Int64("officer_id", req.OfficerID),
		slog.String("date", domain.DateKey(date)),
		slog.Int64("shift_type_id", req.ShiftTypeID),
		slog.String("leave_type", string(req.LeaveType)),
		slog.String("hours", hours.String()),
		slog.Bool("bond_suspended", result.BondSuspended),
	)

	result.Warnings = audit.Report(ctx, m.audit, m.logger, &domain.AuditEntry{
		Actor:       req.Actor,
		ActionType:  domain.AuditPTOAssigned,
		Description: fmt.Sprintf("登记 %s 请假 %s 小时", req.LeaveType, hours),
		OfficerID:   req.OfficerID,
		Date:        store.Time(date),
		ShiftTypeID: req.ShiftTypeID,
		Before:      before,
		After:       after,
	})
	return result, nil
}

// RemovePTO 撤销警员在该日期该班次的请假，退回已扣除的余额并恢复搭档关系
func (m *Manager) RemovePTO(ctx context.Context, req RemoveRequest) (*RemoveResult, error) {
	date := domain.Day(req.Date)
	scope := domain.Scope{OfficerID: req.OfficerID, Date: date, ShiftTypeID: req.ShiftTypeID}

	if req.Date.IsZero() {
		return nil, scope.Validation(domain.ErrInvalidTimeRange, "date", "日期不能为空")
	}

	release, err := locker.Slot(ctx, m.locker, scope)
	if err != nil {
		return nil, err
	}
	defer release()

	enabled, err := m.settings.PTOBalancesEnabled(ctx)
	if err != nil {
		return nil, scope.Transient(err)
	}

	if _, err := m.store.GetShiftType(ctx, req.ShiftTypeID); err != nil {
		return nil, store.Wrap(scope, err)
	}

	result := &RemoveResult{BalancesEnabled: enabled}
	var before, after auditState

	err = m.store.WithTx(ctx, func(tx store.Store) error {
		officer, err := tx.GetOfficer(ctx, req.OfficerID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		before.Balances = snapshotOf(officer)

		existing, err := partnership.PTORecords(ctx, tx, req.OfficerID, date, req.ShiftTypeID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		if len(existing) == 0 {
			return scope.Validation(domain.ErrPTONotFound, "", "")
		}
		before.Exceptions = existing

		changed := refund(officer, existing)
		if err := writeBalances(ctx, tx, officer, changed); err != nil {
			return store.Wrap(scope, err)
		}

		if _, err := tx.DeleteAssignments(ctx, store.AssignmentFilter{
			OfficerID:     store.Int64(req.OfficerID),
			ShiftTypeID:   store.Int64(req.ShiftTypeID),
			Date:          store.Time(date),
			ScheduleTypes: []domain.ScheduleType{domain.SchedulePTO},
		}); err != nil {
			return store.Wrap(scope, err)
		}

		var formerPartnerID *int64
		for _, row := range existing {
			if row.PartnerOfficerID != nil {
				formerPartnerID = row.PartnerOfficerID
				break
			}
		}

		outcome, err := m.ledger.RestoreAfterLeave(ctx, tx, req.OfficerID, date, req.ShiftTypeID, formerPartnerID, req.Actor)
		if err != nil {
			return err
		}

		after.Balances = snapshotOf(officer)
		after.Exceptions = []*domain.ScheduleAssignment{}

		result.Removed = existing
		result.Restored = outcome.Restored
		result.EmergencyRetained = outcome.EmergencyRetained
		result.NowSuspended = outcome.NowSuspended
		result.PartnerID = outcome.PartnerID
		result.StandInID = outcome.StandInID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("请假已撤销",
		slog.Int64("officer_id", req.OfficerID),
		slog.String("date", domain.DateKey(date)),
		slog.Int64("shift_type_id", req.ShiftTypeID),
		slog.Bool("restored", result.Restored),
		slog.Bool("emergency_retained", result.EmergencyRetained),
	)

	result.Warnings = audit.Report(ctx, m.audit, m.logger, &domain.AuditEntry{
		Actor:       req.Actor,
		ActionType:  domain.AuditPTORemoved,
		Description: fmt.Sprintf("撤销请假 %d 条", len(result.Removed)),
		OfficerID:   req.OfficerID,
		Date:        store.Time(date),
		ShiftTypeID: req.ShiftTypeID,
		Before:      before,
		After:       after,
	})
	return result, nil
}

// leaveHours 计算请假小时数；部分时段请假使用自定义起止时间
func leaveHours(scope domain.Scope, shift *domain.ShiftType, req AssignRequest) (decimal.Decimal, bool, error) {
	start, end, field := shift.StartTime, shift.EndTime, "shiftTypeID"
	partial := !req.FullShift
	if partial {
		if req.StartTime == "" || req.EndTime == "" {
			return decimal.Zero, false, scope.Validation(domain.ErrInvalidTimeRange, "startTime", "部分时段请假必须指定起止时间")
		}
		start, end, field = req.StartTime, req.EndTime, "startTime"
		if err := utils.WithinShift(shift.StartTime, shift.EndTime, start, end); err != nil {
			return decimal.Zero, false, scope.Validation(domain.ErrInvalidTimeRange, field, err.Error())
		}
	}

	hours, err := utils.LeaveHours(start, end)
	if err != nil {
		return decimal.Zero, false, scope.Validation(domain.ErrInvalidTimeRange, field, err.Error())
	}
	return hours, partial, nil
}

// refund 将已扣除的请假小时退回到 officer 上，返回被修改的余额类型
func refund(officer *domain.Officer, rows []*domain.ScheduleAssignment) map[domain.LeaveType]bool {
	changed := make(map[domain.LeaveType]bool)
	for _, row := range rows {
		if !row.BalanceDeducted || !row.LeaveType.Valid() {
			continue
		}
		officer.SetBalance(row.LeaveType, officer.Balance(row.LeaveType).Add(row.Hours))
		changed[row.LeaveType] = true
	}
	return changed
}

// writeBalances 依次写入修改过的余额，每次写入都以上一次返回的 version 为条件
func writeBalances(ctx context.Context, tx store.Store, officer *domain.Officer, changed map[domain.LeaveType]bool) error {
	for _, leave := range []domain.LeaveType{domain.LeaveVacation, domain.LeaveSick, domain.LeaveComp, domain.LeaveHoliday} {
		if !changed[leave] {
			continue
		}
		version, err := tx.UpdateOfficerBalance(ctx, officer.ID, leave, officer.Balance(leave), officer.Version)
		if err != nil {
			return err
		}
		officer.Version = version
	}
	return nil
}
