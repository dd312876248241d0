package emergency

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/locker"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/pto"
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

// roster 当天白班的人员：
//
//	x 见习警员，常规搭档 y 请假
//	p 见习警员，没有搭档
//	c 中士，没有搭档
//	z 警员，没有搭档
//	w、v 一对常规搭档
//	n 只上夜班
type roster struct {
	ctx      context.Context
	store    *memory.Memory
	ledger   *partnership.Ledger
	locker   *locker.Memory
	audit    *audit.Memory
	pto      *pto.Manager
	resolver *Resolver
	day      *domain.ShiftType
	night    *domain.ShiftType

	x, y, p, c, z, w, v, n *domain.Officer
}

func newRoster(t *testing.T) *roster {
	t.Helper()
	r := &roster{
		ctx:    context.Background(),
		store:  memory.New(),
		ledger: partnership.NewLedger(func() time.Time { return now }),
		locker: locker.NewMemory(),
		audit:  audit.NewMemory(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r.pto = pto.NewManager(r.store, r.ledger, r.locker, settings.NewStatic(true), r.audit, logger)
	r.resolver = NewResolver(r.store, r.ledger, r.locker, r.audit, logger)

	r.day = r.store.AddShiftType(&domain.ShiftType{Name: "白班", StartTime: "07:00", EndTime: "15:00"})
	r.night = r.store.AddShiftType(&domain.ShiftType{Name: "夜班", StartTime: "22:00", EndTime: "06:00", CrossesMidnight: true})

	r.x = r.officer("Xi Li", domain.RankProbationary, r.day)
	r.y = r.officer("Yan Wu", domain.RankOfficer, r.day)
	r.p = r.officer("Pei Zhao", domain.RankProbationary, r.day)
	r.c = r.officer("Cao Sun", domain.RankSergeant, r.day)
	r.z = r.officer("Zed Ng", domain.RankOfficer, r.day)
	r.w = r.officer("Wen He", domain.RankOfficer, r.day)
	r.v = r.officer("Vic Ma", domain.RankOfficer, r.day)
	r.n = r.officer("Nan Lu", domain.RankOfficer, r.night)

	r.bond(r.x, r.y)
	r.bond(r.w, r.v)

	_, err := r.pto.AssignOrUpdatePTO(r.ctx, pto.AssignRequest{
		OfficerID:   r.y.ID,
		Date:        monday,
		ShiftTypeID: r.day.ID,
		LeaveType:   domain.LeaveVacation,
		FullShift:   true,
		Actor:       "sgt.lee",
	})
	require.NoError(t, err)
	return r
}

func (r *roster) officer(name string, rank domain.Rank, shift *domain.ShiftType) *domain.Officer {
	hired := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	o := r.store.AddOfficer(&domain.Officer{
		FullName:      name,
		Rank:          rank,
		HireDate:      &hired,
		VacationHours: decimal.NewFromInt(40),
		IsActive:      true,
	})
	weekday := monday.Weekday()
	r.store.AddAssignment(&domain.ScheduleAssignment{
		OfficerID: o.ID, ShiftTypeID: shift.ID, DayOfWeek: &weekday, ScheduleType: domain.ScheduleNormal,
	})
	return o
}

func (r *roster) bond(a, b *domain.Officer) {
	weekday := monday.Weekday()
	bond := domain.NewBond(a.ID, b.ID, r.day.ID, domain.BondRegular)
	bond.DayOfWeek = &weekday
	r.store.AddBond(bond)
}

func (r *roster) state(t *testing.T, o *domain.Officer) *partnership.Status {
	t.Helper()
	st, err := r.ledger.Status(r.ctx, r.store, o.ID, monday, r.day.ID)
	require.NoError(t, err)
	return st
}

func (r *roster) request(ppo, candidate *domain.Officer) BondRequest {
	return BondRequest{
		PPOID:       ppo.ID,
		CandidateID: candidate.ID,
		Date:        monday,
		ShiftTypeID: r.day.ID,
		Actor:       "sgt.lee",
	}
}

func (r *roster) dissolveBy(o *domain.Officer) DissolveRequest {
	return DissolveRequest{OfficerID: o.ID, Date: monday, ShiftTypeID: r.day.ID, Actor: "sgt.lee"}
}

func TestFindEmergencyCandidates(t *testing.T) {
	r := newRoster(t)

	res, err := r.resolver.FindEmergencyCandidates(r.ctx, r.x.ID, monday, r.day.ID)
	require.NoError(t, err)
	assert.Equal(t, partnership.SuspendedEmergencyEligible, res.PPO.State)

	got := make([]int64, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		got = append(got, c.Officer.ID)
		assert.False(t, c.Officer.IsProbationary())
	}
	if diff := cmp.Diff([]int64{r.c.ID, r.z.ID}, got); diff != "" {
		t.Errorf("候选人顺序不符 (-want +got):\n%s", diff)
	}

	excluded := make(map[int64]ExclusionReason)
	for _, e := range res.Excluded {
		excluded[e.OfficerID] = e.Reason
	}
	want := map[int64]ExclusionReason{
		r.x.ID: ExcludedSelf,
		r.y.ID: ExcludedOnLeave,
		r.p.ID: ExcludedProbationary,
		r.w.ID: ExcludedAlreadyPartnered,
		r.v.ID: ExcludedAlreadyPartnered,
	}
	if diff := cmp.Diff(want, excluded); diff != "" {
		t.Errorf("排除原因不符 (-want +got):\n%s", diff)
	}
	assert.NotContains(t, excluded, r.n.ID)
}

func TestFindEmergencyCandidates_InactiveOfficer(t *testing.T) {
	r := newRoster(t)

	hired := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	retired := r.store.AddOfficer(&domain.Officer{
		FullName: "Bo Tan",
		Rank:     domain.RankSergeant,
		HireDate: &hired,
		IsActive: false,
	})
	weekday := monday.Weekday()
	r.store.AddAssignment(&domain.ScheduleAssignment{
		OfficerID: retired.ID, ShiftTypeID: r.day.ID, DayOfWeek: &weekday, ScheduleType: domain.ScheduleNormal,
	})

	res, err := r.resolver.FindEmergencyCandidates(r.ctx, r.x.ID, monday, r.day.ID)
	require.NoError(t, err)

	for _, c := range res.Candidates {
		assert.NotEqual(t, retired.ID, c.Officer.ID)
	}
	var found *Exclusion
	for i := range res.Excluded {
		if res.Excluded[i].OfficerID == retired.ID {
			found = &res.Excluded[i]
		}
	}
	require.NotNil(t, found, "停用的警员应出现在排除列表中")
	assert.Equal(t, ExcludedInactive, found.Reason)
	assert.Equal(t, "Bo Tan", found.FullName)

	_, err = r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, retired))
	assert.ErrorIs(t, err, domain.ErrCandidateIneligible)
}

func TestFindEmergencyCandidates_NotEligible(t *testing.T) {
	r := newRoster(t)

	tests := []struct {
		name    string
		officer *domain.Officer
	}{
		{"非见习警员", r.z},
		{"没有搭档的见习警员", r.p},
		{"请假中的警员", r.y},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.resolver.FindEmergencyCandidates(r.ctx, tt.officer.ID, monday, r.day.ID)
			assert.ErrorIs(t, err, domain.ErrNotEmergencyEligible)
			assert.Equal(t, domain.KindBusinessRule, domain.KindOf(err))
		})
	}

	_, err := r.resolver.FindEmergencyCandidates(r.ctx, 999, monday, r.day.ID)
	assert.ErrorIs(t, err, domain.ErrOfficerOrShiftNotFound)
}

func TestCreateEmergencyBond(t *testing.T) {
	r := newRoster(t)

	res, err := r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, r.z))
	require.NoError(t, err)
	assert.Equal(t, domain.BondEmergency, res.Bond.Kind)
	assert.Empty(t, res.Warnings)

	x := r.state(t, r.x)
	assert.Equal(t, partnership.PartneredActive, x.State)
	assert.True(t, x.Emergency)
	assert.Equal(t, r.z.ID, *x.PartnerID)
	assert.Equal(t, r.y.ID, *x.OriginalPartnerID)

	z := r.state(t, r.z)
	assert.Equal(t, partnership.PartneredActive, z.State)
	assert.Equal(t, r.x.ID, *z.PartnerID)

	exceptionType := domain.ExceptionEmergencyReassignment
	logs, err := r.store.FindPartnershipLogs(r.ctx, store.LogFilter{ExceptionType: &exceptionType, UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, r.x.ID, logs[0].OfficerID)
	assert.Equal(t, r.z.ID, logs[0].PartnerOfficerID)

	entries := r.audit.Entries()
	assert.Equal(t, domain.AuditEmergencyBondCreated, entries[len(entries)-1].ActionType)

	// 已有紧急搭档后不能再次调配
	_, err = r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, r.c))
	assert.ErrorIs(t, err, domain.ErrNotEmergencyEligible)
	_, err = r.resolver.FindEmergencyCandidates(r.ctx, r.x.ID, monday, r.day.ID)
	assert.ErrorIs(t, err, domain.ErrNotEmergencyEligible)
}

func TestCreateEmergencyBond_Rejected(t *testing.T) {
	r := newRoster(t)

	tests := []struct {
		name      string
		ppo       *domain.Officer
		candidate *domain.Officer
		want      error
	}{
		{"两名见习警员", r.x, r.p, domain.ErrProbationaryPairing},
		{"候选人不当班", r.x, r.n, domain.ErrCandidateIneligible},
		{"候选人已有搭档", r.x, r.w, domain.ErrCandidateIneligible},
		{"候选人请假", r.x, r.y, domain.ErrCandidateIneligible},
		{"候选人是自己", r.x, r.x, domain.ErrCandidateIneligible},
		{"非见习警员", r.z, r.c, domain.ErrNotEmergencyEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.resolver.CreateEmergencyBond(r.ctx, r.request(tt.ppo, tt.candidate))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.KindBusinessRule, domain.KindOf(err))
		})
	}

	bonds, err := r.store.FindBonds(r.ctx, store.BondFilter{ShiftTypeID: r.day.ID, Date: monday})
	require.NoError(t, err)
	for _, b := range bonds {
		assert.Equal(t, domain.BondRegular, b.Kind)
	}
	assert.Equal(t, partnership.SuspendedEmergencyEligible, r.state(t, r.x).State)
}

func TestCreateEmergencyBond_SlotBusy(t *testing.T) {
	r := newRoster(t)

	release, err := r.locker.Acquire(r.ctx, locker.SlotKey(monday, r.day.ID))
	require.NoError(t, err)
	defer release()

	_, err = r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, r.z))
	assert.ErrorIs(t, err, domain.ErrSlotBusy)
	assert.True(t, domain.IsRetryable(err))
}

func TestDissolveEmergencyBond_WhileOriginalAway(t *testing.T) {
	r := newRoster(t)
	_, err := r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, r.z))
	require.NoError(t, err)

	res, err := r.resolver.DissolveEmergencyBond(r.ctx, r.dissolveBy(r.z))
	require.NoError(t, err)
	assert.False(t, res.Restored)
	assert.Nil(t, res.RestoredOfficerID)

	assert.Equal(t, partnership.SuspendedEmergencyEligible, r.state(t, r.x).State)
	assert.Equal(t, partnership.Unpartnered, r.state(t, r.z).State)

	_, err = r.resolver.DissolveEmergencyBond(r.ctx, r.dissolveBy(r.z))
	assert.ErrorIs(t, err, domain.ErrEmergencyBondMissing)
}

func TestDissolveEmergencyBond_RestoresRegularPartner(t *testing.T) {
	r := newRoster(t)
	_, err := r.resolver.CreateEmergencyBond(r.ctx, r.request(r.x, r.z))
	require.NoError(t, err)

	removed, err := r.pto.RemovePTO(r.ctx, pto.RemoveRequest{
		OfficerID: r.y.ID, Date: monday, ShiftTypeID: r.day.ID, Actor: "sgt.lee",
	})
	require.NoError(t, err)
	assert.True(t, removed.EmergencyRetained)

	res, err := r.resolver.DissolveEmergencyBond(r.ctx, r.dissolveBy(r.x))
	require.NoError(t, err)
	assert.True(t, res.Restored)
	assert.Equal(t, r.x.ID, *res.RestoredOfficerID)

	x := r.state(t, r.x)
	assert.Equal(t, partnership.PartneredActive, x.State)
	assert.False(t, x.Emergency)
	assert.Equal(t, r.y.ID, *x.PartnerID)

	open, err := r.store.FindPartnershipLogs(r.ctx, store.LogFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}
