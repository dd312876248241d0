package partnership

import (
	"context"
	"fmt"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

// LeaveOutcome 请假对搭档关系的影响
type LeaveOutcome struct {
	BondSuspended     bool
	PartnerID         *int64
	PartnerState      State
	EmergencyEligible bool
	// DissolvedEmergency 请假者原本处于紧急搭档中，该紧急搭档已解除
	DissolvedEmergency *domain.PartnershipBond
	// RestoredOf 紧急搭档解除后恢复了常规搭档的警员
	RestoredOf *int64
}

// TakeLeave 处理 leaverID 在该班次请假后的搭档变化，必须在事务内调用。
// 常规搭档不存在时对搭档关系没有影响。
func (l *Ledger) TakeLeave(ctx context.Context, s store.Store, leaverID int64, date time.Time, shiftTypeID int64, reason, actor string) (*LeaveOutcome, error) {
	date = domain.Day(date)
	scope := scopeOf(leaverID, date, shiftTypeID)
	out := &LeaveOutcome{}

	// 请假者自己的紧急搭档随请假一并解除
	emergency, err := l.EmergencyBond(ctx, s, leaverID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if emergency != nil {
		if err := l.dissolve(ctx, s, emergency, date, actor); err != nil {
			return nil, err
		}
		out.DissolvedEmergency = emergency

		// 被顶替的常规搭档若已销假，见习警员直接回到原搭档身边
		if out.RestoredOf, err = l.restoreOriginal(ctx, s, emergency, date, actor); err != nil {
			return nil, err
		}
	}

	// 请假者自己若处于挂起状态，挂起记录不再有意义
	if err := l.dropOwnSuspension(ctx, s, leaverID, date, shiftTypeID, actor); err != nil {
		return nil, err
	}

	bond, err := l.RegularBond(ctx, s, leaverID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if bond == nil {
		return out, nil
	}

	partnerID := bond.Other(leaverID)
	partnerLeave, err := OnLeaveOn(ctx, s, partnerID, date, shiftTypeID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	if partnerLeave {
		out.PartnerID = store.Int64(partnerID)
		out.PartnerState = OnLeave
		return out, nil
	}

	leaver, err := s.GetOfficer(ctx, leaverID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	partner, err := s.GetOfficer(ctx, partnerID)
	if err != nil {
		return nil, store.Wrap(scopeOf(partnerID, date, shiftTypeID), err)
	}

	if err := l.suspend(ctx, s, leaver, partner, date, shiftTypeID, reason); err != nil {
		return nil, err
	}

	partnerEmergency, err := l.EmergencyBond(ctx, s, partnerID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}

	out.BondSuspended = true
	out.PartnerID = store.Int64(partnerID)
	if partnerEmergency != nil {
		out.PartnerState = PartneredActive
	} else {
		out.PartnerState = SuspendedStateFor(partner)
		out.EmergencyEligible = out.PartnerState == SuspendedEmergencyEligible
	}
	return out, nil
}

// suspend 为仍在岗的 remaining 写入挂起记录，记录中保存原搭档 leaver
func (l *Ledger) suspend(ctx context.Context, s store.Store, leaver, remaining *domain.Officer, date time.Time, shiftTypeID int64, reason string) error {
	scope := scopeOf(remaining.ID, date, shiftTypeID)

	existing, err := l.SuspensionRecord(ctx, s, remaining.ID, date, shiftTypeID)
	if err != nil {
		return err
	}
	if existing != nil && existing.PartnerOfficerID != nil && *existing.PartnerOfficerID != leaver.ID {
		return scope.Consistency(domain.ErrPartnershipDuplicated,
			fmt.Sprintf("已因警员 %d 请假而挂起", *existing.PartnerOfficerID))
	}

	now := l.now()
	record := &domain.ScheduleAssignment{
		OfficerID:            remaining.ID,
		ShiftTypeID:          shiftTypeID,
		Date:                 store.Time(date),
		PartnerOfficerID:     store.Int64(leaver.ID),
		IsPartnership:        true,
		PartnershipSuspended: true,
		SuspensionReason:     reason,
		ScheduleType:         domain.ScheduleWorkingPartnerSuspended,
		CreatedAt:            now,
	}
	if err := s.UpsertAssignment(ctx, record); err != nil {
		return store.Wrap(scope, err)
	}

	exceptionType := domain.ExceptionPTOSuspension
	open, err := s.FindPartnershipLogs(ctx, store.LogFilter{
		OfficerID:      store.Int64(leaver.ID),
		PartnerID:      store.Int64(remaining.ID),
		Date:           store.Time(date),
		ShiftTypeID:    store.Int64(shiftTypeID),
		ExceptionType:  &exceptionType,
		UnresolvedOnly: true,
	})
	if err != nil {
		return store.Wrap(scope, err)
	}
	if len(open) > 0 {
		return nil
	}

	err = s.InsertPartnershipLog(ctx, &domain.PartnershipExceptionLog{
		OfficerID:            leaver.ID,
		PartnerOfficerID:     remaining.ID,
		Date:                 date,
		ShiftTypeID:          shiftTypeID,
		Reason:               reason,
		ExceptionType:        domain.ExceptionPTOSuspension,
		CreatedAt:            now,
		IsPPOPartnership:     leaver.IsProbationary() || remaining.IsProbationary(),
		CanEmergencyReassign: remaining.IsProbationary(),
	})
	return store.Wrap(scope, err)
}

// dropOwnSuspension 删除 officerID 自己的挂起记录，并断开原搭档请假记录上的引用
func (l *Ledger) dropOwnSuspension(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64, actor string) error {
	scope := scopeOf(officerID, date, shiftTypeID)

	record, err := l.SuspensionRecord(ctx, s, officerID, date, shiftTypeID)
	if err != nil || record == nil {
		return err
	}

	if record.PartnerOfficerID != nil {
		originalID := *record.PartnerOfficerID
		rows, err := PTORecords(ctx, s, originalID, date, shiftTypeID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		for _, row := range rows {
			if row.PartnerOfficerID == nil || *row.PartnerOfficerID != officerID {
				continue
			}
			row.PartnerOfficerID = nil
			if err := s.UpsertAssignment(ctx, row); err != nil {
				return store.Wrap(scope, err)
			}
		}
	}

	return l.clearSuspension(ctx, s, record, actor)
}

// clearSuspension 删除挂起记录并关闭对应的例外日志
func (l *Ledger) clearSuspension(ctx context.Context, s store.Store, record *domain.ScheduleAssignment, actor string) error {
	date := domain.Day(*record.Date)
	scope := scopeOf(record.OfficerID, date, record.ShiftTypeID)

	_, err := s.DeleteAssignments(ctx, store.AssignmentFilter{
		OfficerID:     store.Int64(record.OfficerID),
		ShiftTypeID:   store.Int64(record.ShiftTypeID),
		Date:          store.Time(date),
		ScheduleTypes: []domain.ScheduleType{domain.ScheduleWorkingPartnerSuspended},
	})
	if err != nil {
		return store.Wrap(scope, err)
	}

	exceptionType := domain.ExceptionPTOSuspension
	_, err = s.ResolvePartnershipLogs(ctx, store.LogFilter{
		PartnerID:     store.Int64(record.OfficerID),
		Date:          store.Time(date),
		ShiftTypeID:   store.Int64(record.ShiftTypeID),
		ExceptionType: &exceptionType,
	}, actor, l.now())
	return store.Wrap(scope, err)
}

// RestoreOutcome 销假对搭档关系的影响
type RestoreOutcome struct {
	Restored          bool
	EmergencyRetained bool
	PartnerID         *int64
	StandInID         *int64
	// NowSuspended 销假者回到岗位时常规搭档仍在请假，销假者转为挂起
	NowSuspended      bool
	EmergencyEligible bool
}

// RestoreAfterLeave 处理 returningID 销假后的搭档变化，必须在事务内调用。
// formerPartnerID 是请假记录上保存的被挂起搭档，非空时对应的挂起记录必须存在。
func (l *Ledger) RestoreAfterLeave(ctx context.Context, s store.Store, returningID int64, date time.Time, shiftTypeID int64, formerPartnerID *int64, actor string) (*RestoreOutcome, error) {
	date = domain.Day(date)
	scope := scopeOf(returningID, date, shiftTypeID)
	out := &RestoreOutcome{}

	records, err := s.FindAssignments(ctx, store.AssignmentFilter{
		PartnerID:     store.Int64(returningID),
		ShiftTypeID:   store.Int64(shiftTypeID),
		Date:          store.Time(date),
		ScheduleTypes: []domain.ScheduleType{domain.ScheduleWorkingPartnerSuspended},
	})
	if err != nil {
		return nil, store.Wrap(scope, err)
	}

	switch len(records) {
	case 0:
		if formerPartnerID != nil {
			partnerLeave, err := OnLeaveOn(ctx, s, *formerPartnerID, date, shiftTypeID)
			if err != nil {
				return nil, store.Wrap(scope, err)
			}
			if !partnerLeave {
				return nil, scope.Consistency(domain.ErrPartnershipMissing,
					fmt.Sprintf("警员 %d 的挂起记录不存在", *formerPartnerID))
			}
		}
	case 1:
		record := records[0]
		out.PartnerID = store.Int64(record.OfficerID)

		emergency, err := l.EmergencyBond(ctx, s, record.OfficerID, date, shiftTypeID)
		if err != nil {
			return nil, err
		}
		if emergency != nil {
			standIn := emergency.Other(record.OfficerID)
			record.SuspensionReason = fmt.Sprintf("原搭档 %d 已销假，紧急搭档 %d 仍然有效，需主管处理", returningID, standIn)
			if err := s.UpsertAssignment(ctx, record); err != nil {
				return nil, store.Wrap(scope, err)
			}
			out.EmergencyRetained = true
			out.StandInID = store.Int64(standIn)
			return out, nil
		}

		if err := l.clearSuspension(ctx, s, record, actor); err != nil {
			return nil, err
		}
		out.Restored = true
		return out, nil
	default:
		return nil, scope.Consistency(domain.ErrPartnershipDuplicated, "多条挂起记录引用同一警员")
	}

	// 销假者回到岗位，但常规搭档仍在请假
	bond, err := l.RegularBond(ctx, s, returningID, date, shiftTypeID)
	if err != nil || bond == nil {
		return out, err
	}
	partnerID := bond.Other(returningID)
	partnerLeave, err := OnLeaveOn(ctx, s, partnerID, date, shiftTypeID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	if !partnerLeave {
		return out, nil
	}

	returning, err := s.GetOfficer(ctx, returningID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	partner, err := s.GetOfficer(ctx, partnerID)
	if err != nil {
		return nil, store.Wrap(scopeOf(partnerID, date, shiftTypeID), err)
	}
	if err := l.suspend(ctx, s, partner, returning, date, shiftTypeID, fmt.Sprintf("搭档 %s 请假", partner.FullName)); err != nil {
		return nil, err
	}
	if err := l.linkLeave(ctx, s, partnerID, returningID, date, shiftTypeID); err != nil {
		return nil, err
	}

	out.PartnerID = store.Int64(partnerID)
	out.NowSuspended = true
	out.EmergencyEligible = returning.IsProbationary()
	return out, nil
}

// linkLeave 在请假记录上记下被挂起的搭档，销假时据此核对挂起记录
func (l *Ledger) linkLeave(ctx context.Context, s store.Store, leaverID, suspendedID int64, date time.Time, shiftTypeID int64) error {
	scope := scopeOf(leaverID, date, shiftTypeID)

	rows, err := PTORecords(ctx, s, leaverID, date, shiftTypeID)
	if err != nil {
		return store.Wrap(scope, err)
	}
	for _, row := range rows {
		row.PartnerOfficerID = store.Int64(suspendedID)
		if err := s.UpsertAssignment(ctx, row); err != nil {
			return store.Wrap(scope, err)
		}
	}
	return nil
}

// BindEmergency 为 ppoID 与 candidateID 建立仅限当天该班次的紧急搭档。
// 调用方负责资格校验；ppoID 的挂起记录保持不变，其中的原搭档引用不会被覆盖。
func (l *Ledger) BindEmergency(ctx context.Context, s store.Store, ppoID, candidateID int64, date time.Time, shiftTypeID int64, reason, actor string) (*domain.PartnershipBond, error) {
	date = domain.Day(date)
	scope := scopeOf(ppoID, date, shiftTypeID)
	now := l.now()

	bond := domain.NewBond(ppoID, candidateID, shiftTypeID, domain.BondEmergency)
	bond.Date = store.Time(date)
	bond.CreatedBy = actor
	bond.CreatedAt = now
	if err := s.InsertBond(ctx, bond); err != nil {
		return nil, store.Wrap(scope, err)
	}

	for _, pair := range [][2]int64{{ppoID, candidateID}, {candidateID, ppoID}} {
		err := s.UpsertAssignment(ctx, &domain.ScheduleAssignment{
			OfficerID:        pair[0],
			ShiftTypeID:      shiftTypeID,
			Date:             store.Time(date),
			PartnerOfficerID: store.Int64(pair[1]),
			IsPartnership:    true,
			ScheduleType:     domain.ScheduleEmergencyPartnership,
			CreatedAt:        now,
		})
		if err != nil {
			return nil, store.Wrap(scopeOf(pair[0], date, shiftTypeID), err)
		}
	}

	err := s.InsertPartnershipLog(ctx, &domain.PartnershipExceptionLog{
		OfficerID:            ppoID,
		PartnerOfficerID:     candidateID,
		Date:                 date,
		ShiftTypeID:          shiftTypeID,
		Reason:               reason,
		ExceptionType:        domain.ExceptionEmergencyReassignment,
		CreatedAt:            now,
		IsPPOPartnership:     true,
		CanEmergencyReassign: true,
	})
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	return bond, nil
}

// DissolveOutcome 解除紧急搭档的结果
type DissolveOutcome struct {
	Bond *domain.PartnershipBond
	// Restored 原搭档已销假，见习警员的常规搭档随之恢复
	Restored  bool
	RestoreOf *int64
}

// DissolveEmergency 解除 officerID 在该班次的紧急搭档（officerID 可以是任意一方）
func (l *Ledger) DissolveEmergency(ctx context.Context, s store.Store, officerID int64, date time.Time, shiftTypeID int64, actor string) (*DissolveOutcome, error) {
	date = domain.Day(date)
	scope := scopeOf(officerID, date, shiftTypeID)

	bond, err := l.EmergencyBond(ctx, s, officerID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	if bond == nil {
		return nil, scope.BusinessRule(domain.ErrEmergencyBondMissing, "")
	}
	if err := l.dissolve(ctx, s, bond, date, actor); err != nil {
		return nil, err
	}

	restored, err := l.restoreOriginal(ctx, s, bond, date, actor)
	if err != nil {
		return nil, err
	}
	return &DissolveOutcome{Bond: bond, Restored: restored != nil, RestoreOf: restored}, nil
}

// restoreOriginal 在紧急搭档解除后检查双方的挂起记录，原搭档已不在请假时恢复常规搭档。
// 返回被恢复的警员，没有恢复时为 nil。
func (l *Ledger) restoreOriginal(ctx context.Context, s store.Store, bond *domain.PartnershipBond, date time.Time, actor string) (*int64, error) {
	var restored *int64
	for _, id := range []int64{bond.OfficerAID, bond.OfficerBID} {
		record, err := l.SuspensionRecord(ctx, s, id, date, bond.ShiftTypeID)
		if err != nil {
			return nil, err
		}
		if record == nil || record.PartnerOfficerID == nil {
			continue
		}
		originalLeave, err := OnLeaveOn(ctx, s, *record.PartnerOfficerID, date, bond.ShiftTypeID)
		if err != nil {
			return nil, store.Wrap(scopeOf(id, date, bond.ShiftTypeID), err)
		}
		if originalLeave {
			continue
		}
		if err := l.clearSuspension(ctx, s, record, actor); err != nil {
			return nil, err
		}
		restored = store.Int64(id)
	}
	return restored, nil
}

// dissolve 删除紧急搭档及双方的 emergency_partnership 记录，并关闭对应日志
func (l *Ledger) dissolve(ctx context.Context, s store.Store, bond *domain.PartnershipBond, date time.Time, actor string) error {
	scope := scopeOf(bond.OfficerAID, date, bond.ShiftTypeID)

	if err := s.DeleteBond(ctx, bond.ID); err != nil {
		return store.Wrap(scope, err)
	}

	exceptionType := domain.ExceptionEmergencyReassignment
	for _, pair := range [][2]int64{{bond.OfficerAID, bond.OfficerBID}, {bond.OfficerBID, bond.OfficerAID}} {
		_, err := s.DeleteAssignments(ctx, store.AssignmentFilter{
			OfficerID:     store.Int64(pair[0]),
			PartnerID:     store.Int64(pair[1]),
			ShiftTypeID:   store.Int64(bond.ShiftTypeID),
			Date:          store.Time(date),
			ScheduleTypes: []domain.ScheduleType{domain.ScheduleEmergencyPartnership},
		})
		if err != nil {
			return store.Wrap(scope, err)
		}

		_, err = s.ResolvePartnershipLogs(ctx, store.LogFilter{
			OfficerID:     store.Int64(pair[0]),
			PartnerID:     store.Int64(pair[1]),
			Date:          store.Time(date),
			ShiftTypeID:   store.Int64(bond.ShiftTypeID),
			ExceptionType: &exceptionType,
		}, actor, l.now())
		if err != nil {
			return store.Wrap(scope, err)
		}
	}
	return nil
}
