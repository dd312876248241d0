package pto

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/locker"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/settings"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/precinct-ops/duty-roster/backend/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	monday = time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2024, time.June, 16, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	ctx      context.Context
	store    *memory.Memory
	ledger   *partnership.Ledger
	locker   *locker.Memory
	settings *settings.Static
	audit    *audit.Memory
	manager  *Manager
	day      *domain.ShiftType
	night    *domain.ShiftType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.New(),
		ledger:   partnership.NewLedger(func() time.Time { return now }),
		locker:   locker.NewMemory(),
		settings: settings.NewStatic(true),
		audit:    audit.NewMemory(),
	}
	f.day = f.store.AddShiftType(&domain.ShiftType{Name: "白班", StartTime: "07:00", EndTime: "15:00"})
	f.night = f.store.AddShiftType(&domain.ShiftType{Name: "夜班", StartTime: "22:00", EndTime: "06:00", CrossesMidnight: true})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.manager = NewManager(f.store, f.ledger, f.locker, f.settings, f.audit, logger)
	return f
}

func (f *fixture) officer(name string, rank domain.Rank, vacation int64) *domain.Officer {
	o := f.store.AddOfficer(&domain.Officer{
		FullName:      name,
		Rank:          rank,
		VacationHours: decimal.NewFromInt(vacation),
		SickHours:     decimal.NewFromInt(40),
		IsActive:      true,
	})
	weekday := monday.Weekday()
	for _, st := range []*domain.ShiftType{f.day, f.night} {
		f.store.AddAssignment(&domain.ScheduleAssignment{
			OfficerID: o.ID, ShiftTypeID: st.ID, DayOfWeek: &weekday, ScheduleType: domain.ScheduleNormal,
		})
	}
	return o
}

func (f *fixture) bond(a, b *domain.Officer, shift *domain.ShiftType) {
	weekday := monday.Weekday()
	bond := domain.NewBond(a.ID, b.ID, shift.ID, domain.BondRegular)
	bond.DayOfWeek = &weekday
	f.store.AddBond(bond)
}

func (f *fixture) reload(t *testing.T, o *domain.Officer) *domain.Officer {
	t.Helper()
	got, err := f.store.GetOfficer(f.ctx, o.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) state(t *testing.T, o *domain.Officer, shift *domain.ShiftType) partnership.State {
	t.Helper()
	st, err := f.ledger.Status(f.ctx, f.store, o.ID, monday, shift.ID)
	require.NoError(t, err)
	return st.State
}

func (f *fixture) datedRows(t *testing.T) []*domain.ScheduleAssignment {
	t.Helper()
	rows, err := f.store.FindAssignments(f.ctx, store.AssignmentFilter{Date: store.Time(monday)})
	require.NoError(t, err)
	return rows
}

func fullShift(o *domain.Officer, shift *domain.ShiftType, leave domain.LeaveType) AssignRequest {
	return AssignRequest{
		OfficerID:   o.ID,
		Date:        monday,
		ShiftTypeID: shift.ID,
		LeaveType:   leave,
		FullShift:   true,
		Actor:       "sgt.lee",
	}
}

func removal(o *domain.Officer, shift *domain.ShiftType) RemoveRequest {
	return RemoveRequest{OfficerID: o.ID, Date: monday, ShiftTypeID: shift.ID, Actor: "sgt.lee"}
}

func assertHours(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "期望 %d，实际 %s", want, got)
}

func TestAssignAndRemove_ProbationaryPartner(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 40)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	f.bond(x, y, f.day)

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.NoError(t, err)
	assertHours(t, 8, res.Exception.Hours)
	assert.False(t, res.Exception.IsPartialShift)
	assert.True(t, res.Exception.BalanceDeducted)
	assert.True(t, res.BondSuspended)
	assert.Equal(t, x.ID, *res.PartnerID)
	assert.Equal(t, partnership.SuspendedEmergencyEligible, res.PartnerState)
	assert.True(t, res.PartnerEmergencyEligible)
	assertHours(t, 32, *res.Balance)
	assert.Empty(t, res.Warnings)

	assertHours(t, 32, f.reload(t, y).VacationHours)
	assert.Equal(t, partnership.OnLeave, f.state(t, y, f.day))
	assert.Equal(t, partnership.SuspendedEmergencyEligible, f.state(t, x, f.day))

	removed, err := f.manager.RemovePTO(f.ctx, removal(y, f.day))
	require.NoError(t, err)
	assert.True(t, removed.Restored)
	require.Len(t, removed.Removed, 1)

	assertHours(t, 40, f.reload(t, y).VacationHours)
	assert.Equal(t, partnership.PartneredActive, f.state(t, x, f.day))
	assert.Equal(t, partnership.PartneredActive, f.state(t, y, f.day))
	assert.Empty(t, f.datedRows(t))

	entries := f.audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditPTOAssigned, entries[0].ActionType)
	assert.Equal(t, domain.AuditPTORemoved, entries[1].ActionType)
	assert.Equal(t, "sgt.lee", entries[1].Actor)
}

func TestAssign_RegularPartnerNotEligible(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)
	b := f.officer("Bo Chen", domain.RankSergeant, 40)
	f.bond(a, b, f.day)

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.day, domain.LeaveVacation))
	require.NoError(t, err)
	assert.Equal(t, partnership.SuspendedNotEligible, res.PartnerState)
	assert.False(t, res.PartnerEmergencyEligible)
}

func TestAssign_OvernightShift(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.night, domain.LeaveVacation))
	require.NoError(t, err)
	assertHours(t, 8, res.Exception.Hours)
	assertHours(t, 32, f.reload(t, a).VacationHours)
}

func TestAssign_PartialShift(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	req := fullShift(a, f.day, domain.LeaveSick)
	req.FullShift = false
	req.StartTime = "09:00"
	req.EndTime = "11:30"

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Exception.IsPartialShift)
	assert.Equal(t, "09:00", *res.Exception.CustomStartTime)
	assert.True(t, decimal.RequireFromString("2.5").Equal(res.Exception.Hours))
	assert.True(t, decimal.RequireFromString("37.5").Equal(f.reload(t, a).SickHours))
}

func TestAssign_PartialShiftWindow(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	req := fullShift(a, f.day, domain.LeaveSick)
	req.FullShift = false
	req.StartTime = "22:00"
	req.EndTime = "06:00"
	_, err := f.manager.AssignOrUpdatePTO(f.ctx, req)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindValidation, de.Kind)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
	assert.Equal(t, "startTime", de.Field)
	assertHours(t, 40, f.reload(t, a).SickHours)

	rows, err := partnership.PTORecords(f.ctx, f.store, a.ID, monday, f.day.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// 夜班的部分时段可以跨过午夜
	req = fullShift(a, f.night, domain.LeaveSick)
	req.FullShift = false
	req.StartTime = "23:00"
	req.EndTime = "02:00"
	res, err := f.manager.AssignOrUpdatePTO(f.ctx, req)
	require.NoError(t, err)
	assertHours(t, 3, res.Exception.Hours)
	assertHours(t, 37, f.reload(t, a).SickHours)
}

func TestAssign_UpdateReplacesWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 40)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	f.bond(x, y, f.day)

	_, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.NoError(t, err)

	req := fullShift(y, f.day, domain.LeaveSick)
	req.FullShift = false
	req.StartTime = "07:00"
	req.EndTime = "09:00"
	res, err := f.manager.AssignOrUpdatePTO(f.ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Replaced)

	got := f.reload(t, y)
	assertHours(t, 40, got.VacationHours)
	assertHours(t, 38, got.SickHours)

	rows, err := partnership.PTORecords(f.ctx, f.store, y.ID, monday, f.day.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.LeaveSick, rows[0].LeaveType)

	logs, err := f.store.FindPartnershipLogs(f.ctx, store.LogFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, partnership.SuspendedEmergencyEligible, f.state(t, x, f.day))
}

func TestAssign_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 4)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	f.bond(x, y, f.day)

	_, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindBusinessRule, de.Kind)
	assert.Equal(t, "leaveType", de.Field)
	assert.Equal(t, y.ID, de.OfficerID)

	assertHours(t, 4, f.reload(t, y).VacationHours)
	assert.Empty(t, f.datedRows(t))
	assert.Equal(t, partnership.PartneredActive, f.state(t, x, f.day))
	assert.Empty(t, f.audit.Entries())
}

func TestAssign_BalancesDisabled(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 4)
	require.NoError(t, f.settings.SetPTOBalancesEnabled(f.ctx, false))

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.day, domain.LeaveVacation))
	require.NoError(t, err)
	assert.False(t, res.BalancesEnabled)
	assert.False(t, res.Exception.BalanceDeducted)
	assert.Nil(t, res.Balance)
	assertHours(t, 4, f.reload(t, a).VacationHours)

	// 开关在请假期间重新打开，销假时不会退回从未扣除的余额
	require.NoError(t, f.settings.SetPTOBalancesEnabled(f.ctx, true))
	_, err = f.manager.RemovePTO(f.ctx, removal(a, f.day))
	require.NoError(t, err)
	assertHours(t, 4, f.reload(t, a).VacationHours)
}

func TestAssign_RollbackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 40)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	f.bond(x, y, f.day)

	f.store.SetFault("InsertPartnershipLog", store.ErrTransient)
	_, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))

	assertHours(t, 40, f.reload(t, y).VacationHours)
	assert.Empty(t, f.datedRows(t))
	assert.Equal(t, partnership.PartneredActive, f.state(t, x, f.day))
	assert.False(t, f.locker.Held(locker.SlotKey(monday, f.day.ID)))

	f.store.SetFault("InsertPartnershipLog", nil)
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.NoError(t, err)
}

func TestAssign_StoreRejectionCarriesContext(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 40)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	f.bond(x, y, f.day)

	constraint := errors.New("unique_violation")
	f.store.SetFault("UpsertAssignment", constraint)
	_, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	f.store.SetFault("UpsertAssignment", nil)

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindConsistency, de.Kind)
	assert.ErrorIs(t, err, domain.ErrStoreRejected)
	assert.ErrorIs(t, err, constraint)
	assert.Equal(t, monday, de.Date)
	assert.Equal(t, f.day.ID, de.ShiftTypeID)
	assert.NotZero(t, de.OfficerID)
	assert.False(t, domain.IsRetryable(err))

	assertHours(t, 40, f.reload(t, y).VacationHours)
	assert.Empty(t, f.datedRows(t))
	assert.Equal(t, partnership.PartneredActive, f.state(t, x, f.day))
}

func TestAssign_AuditFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)
	f.audit.FailWith(errors.New("queue unavailable"))

	res, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.day, domain.LeaveVacation))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assertHours(t, 32, f.reload(t, a).VacationHours)
}

func TestAssign_SlotBusy(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	release, err := f.locker.Acquire(f.ctx, locker.SlotKey(monday, f.day.ID))
	require.NoError(t, err)
	defer release()

	_, err = f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.day, domain.LeaveVacation))
	assert.ErrorIs(t, err, domain.ErrSlotBusy)
	assert.True(t, domain.IsRetryable(err))

	// 其他班次不受影响
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, fullShift(a, f.night, domain.LeaveVacation))
	assert.NoError(t, err)
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	req := fullShift(a, f.day, "bereavement")
	_, err := f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidLeaveType)

	req = fullShift(a, f.day, domain.LeaveVacation)
	req.FullShift = false
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	req.StartTime = "9am"
	req.EndTime = "11:00"
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	req = fullShift(a, f.day, domain.LeaveVacation)
	req.Date = time.Time{}
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	req = fullShift(&domain.Officer{ID: 999}, f.day, domain.LeaveVacation)
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrOfficerOrShiftNotFound)

	req = fullShift(a, &domain.ShiftType{ID: 999}, domain.LeaveVacation)
	_, err = f.manager.AssignOrUpdatePTO(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrOfficerOrShiftNotFound)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRemove_NotFound(t *testing.T) {
	f := newFixture(t)
	a := f.officer("Ann Baker", domain.RankOfficer, 40)

	_, err := f.manager.RemovePTO(f.ctx, removal(a, f.day))
	assert.ErrorIs(t, err, domain.ErrPTONotFound)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRemove_EmergencyBondRetained(t *testing.T) {
	f := newFixture(t)
	y := f.officer("Yan Wu", domain.RankOfficer, 40)
	x := f.officer("Xi Li", domain.RankProbationary, 40)
	z := f.officer("Zed Ng", domain.RankOfficer, 40)
	f.bond(x, y, f.day)

	_, err := f.manager.AssignOrUpdatePTO(f.ctx, fullShift(y, f.day, domain.LeaveVacation))
	require.NoError(t, err)
	err = f.store.WithTx(f.ctx, func(tx store.Store) error {
		_, err := f.ledger.BindEmergency(f.ctx, tx, x.ID, z.ID, monday, f.day.ID, "临时搭档", "sgt.lee")
		return err
	})
	require.NoError(t, err)

	res, err := f.manager.RemovePTO(f.ctx, removal(y, f.day))
	require.NoError(t, err)
	assert.False(t, res.Restored)
	assert.True(t, res.EmergencyRetained)
	assert.Equal(t, z.ID, *res.StandInID)

	assert.Equal(t, partnership.Unpartnered, f.state(t, y, f.day))
	assert.Equal(t, partnership.PartneredActive, f.state(t, x, f.day))
	assertHours(t, 40, f.reload(t, y).VacationHours)
}
