// Package partnership 维护搭档关系的状态机。
//
// 每个 (警员, 日期, 班次) 的状态由存储中的记录推导：
//
//	请假记录                      -> OnLeave
//	紧急搭档                      -> PartneredActive（与临时搭档）
//	working_partner_suspended 记录 -> SuspendedEmergencyEligible / SuspendedNotEligible
//	常规搭档且双方都未挂起或请假    -> PartneredActive
//	其他                          -> Unpartnered
//
// 只有仍在岗的见习警员可以被紧急调配。
package partnership

import (
	"context"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

type State string

const (
	Unpartnered                State = "unpartnered"
	PartneredActive            State = "partnered_active"
	SuspendedEmergencyEligible State = "suspended_emergency_eligible"
	SuspendedNotEligible       State = "suspended_not_eligible"
	OnLeave                    State = "on_leave"
)

// SuspendedStateFor 搭档请假后，留在岗位上的一方进入的状态
func SuspendedStateFor(remaining *domain.Officer) State {
	if remaining.IsProbationary() {
		return SuspendedEmergencyEligible
	}
	return SuspendedNotEligible
}

type Status struct {
	OfficerID         int64     `json:"officerID"`
	Date              time.Time `json:"date"`
	ShiftTypeID       int64     `json:"shiftTypeID"`
	State             State     `json:"state"`
	PartnerID         *int64    `json:"partnerID"`
	OriginalPartnerID *int64    `json:"originalPartnerID"`
	Suspended         bool      `json:"suspended"`
	Emergency         bool      `json:"emergency"`
	EmergencyEligible bool      `json:"emergencyEligible"`
	Reason            string    `json:"reason"`
}

type Ledger struct {
	now func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

func scopeOf(officerID int64, date time.Time, shiftTypeID int64) domain.Scope {
	return domain.Scope{OfficerID: officerID, Date: date, ShiftTypeID: shiftTypeID}
}

// Status 推导警员在指定日期和班次上的搭档状态
func (l *Ledger) Status(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (*Status, error) {
	date = domain.Day(date)
	scope := scopeOf(officerID, date, shiftTypeID)

	officer, err := s.GetOfficer(ctx, officerID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	if _, err := s.GetShiftType(ctx, shiftTypeID); err != nil {
		return nil, store.Wrap(scope, err)
	}

	st := &Status{OfficerID: officerID, Date: date, ShiftTypeID: shiftTypeID, State: Unpartnered}

	leave, err := OnLeaveOn(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	if leave {
		st.State = OnLeave
		return st, nil
	}

	suspension, err := l.SuspensionRecord(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if suspension != nil {
		st.Suspended = true
		st.OriginalPartnerID = suspension.PartnerOfficerID
		st.Reason = suspension.SuspensionReason
	}

	emergency, err := l.EmergencyBond(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if emergency != nil {
		st.State = PartneredActive
		st.Emergency = true
		st.PartnerID = store.Int64(emergency.Other(officerID))
		return st, nil
	}

	if st.Suspended {
		st.State = SuspendedStateFor(officer)
		st.EmergencyEligible = st.State == SuspendedEmergencyEligible
		return st, nil
	}

	partnerID, active, err := l.activeRegularPartner(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if active {
		st.State = PartneredActive
		st.PartnerID = store.Int64(partnerID)
	}
	return st, nil
}

// activeRegularPartner 常规搭档生效的条件：双方都不在请假，且任何一方都没有引用对方的挂起记录
func (l *Ledger) activeRegularPartner(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (int64, bool, error) {
	scope := scopeOf(officerID, date, shiftTypeID)

	bond, err := l.RegularBond(ctx, s, officerID, date, shiftTypeID)
	if err != nil || bond == nil {
		return 0, false, err
	}
	partnerID := bond.Other(officerID)

	leave, err := OnLeaveOn(ctx, s, partnerID, date, shiftTypeID)
	if err != nil {
		return 0, false, store.Wrap(scope, err)
	}
	if leave {
		return partnerID, false, nil
	}

	refs, err := s.FindAssignments(ctx, store.AssignmentFilter{
		OfficerID:     store.Int64(partnerID),
		PartnerID:     store.Int64(officerID),
		ShiftTypeID:   store.Int64(shiftTypeID),
		Date:          store.Time(date),
		ScheduleTypes: []domain.ScheduleType{domain.ScheduleWorkingPartnerSuspended},
	})
	if err != nil {
		return 0, false, store.Wrap(scope, err)
	}
	return partnerID, len(refs) == 0, nil
}

// OnLeaveOn 判断警员在该日期该班次是否有请假记录
func OnLeaveOn(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (bool, error) {
	rows, err := PTORecords(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func PTORecords(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) ([]*domain.ScheduleAssignment, error) {
	return s.FindAssignments(ctx, store.AssignmentFilter{
		OfficerID:     store.Int64(officerID),
		ShiftTypeID:   store.Int64(shiftTypeID),
		Date:          store.Time(date),
		ScheduleTypes: []domain.ScheduleType{domain.SchedulePTO},
	})
}

// SuspensionRecord 返回警员自己的挂起记录，多于一条视为数据不一致
func (l *Ledger) SuspensionRecord(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (*domain.ScheduleAssignment, error) {
	scope := scopeOf(officerID, date, shiftTypeID)

	rows, err := s.FindAssignments(ctx, store.AssignmentFilter{
		OfficerID:     store.Int64(officerID),
		ShiftTypeID:   store.Int64(shiftTypeID),
		Date:          store.Time(date),
		ScheduleTypes: []domain.ScheduleType{domain.ScheduleWorkingPartnerSuspended},
	})
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	}
	return nil, scope.Consistency(domain.ErrPartnershipDuplicated, "多条挂起记录")
}

func (l *Ledger) RegularBond(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (*domain.PartnershipBond, error) {
	return l.bond(ctx, s, officerID, date, shiftTypeID, domain.BondRegular)
}

func (l *Ledger) EmergencyBond(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64) (*domain.PartnershipBond, error) {
	return l.bond(ctx, s, officerID, date, shiftTypeID, domain.BondEmergency)
}

func (l *Ledger) bond(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64, kind domain.BondKind) (*domain.PartnershipBond, error) {
	scope := scopeOf(officerID, date, shiftTypeID)

	bonds, err := s.FindBonds(ctx, store.BondFilter{
		OfficerID:   store.Int64(officerID),
		ShiftTypeID: shiftTypeID,
		Date:        date,
		Kind:        &kind,
	})
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	switch len(bonds) {
	case 0:
		return nil, nil
	case 1:
		return bonds[0], nil
	}
	return nil, scope.Consistency(domain.ErrPartnershipDuplicated, "同一班次存在多个"+string(kind)+"搭档")
}
