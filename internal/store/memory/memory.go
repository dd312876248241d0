// Package memory 提供 store.TxStore 的内存实现，供测试与本地运行使用。
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/shopspring/decimal"
)

type state struct {
	officers    map[int64]*domain.Officer
	shiftTypes  map[int64]*domain.ShiftType
	assignments map[int64]*domain.ScheduleAssignment
	bonds       map[int64]*domain.PartnershipBond
	logs        map[int64]*domain.PartnershipExceptionLog
	nextID      int64
}

func newState() *state {
	return &state{
		officers:    make(map[int64]*domain.Officer),
		shiftTypes:  make(map[int64]*domain.ShiftType),
		assignments: make(map[int64]*domain.ScheduleAssignment),
		bonds:       make(map[int64]*domain.PartnershipBond),
		logs:        make(map[int64]*domain.PartnershipExceptionLog),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.officers {
		c.officers[k] = v.Clone()
	}
	for k, v := range s.shiftTypes {
		st := *v
		c.shiftTypes[k] = &st
	}
	for k, v := range s.assignments {
		c.assignments[k] = v.Clone()
	}
	for k, v := range s.bonds {
		c.bonds[k] = v.Clone()
	}
	for k, v := range s.logs {
		c.logs[k] = v.Clone()
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Memory 所有方法都持有同一把互斥锁；WithTx 在执行前对全部数据做快照，出错时整体恢复
type Memory struct {
	mu     sync.Mutex
	data   *state
	faults map[string]error
}

func New() *Memory {
	return &Memory{data: newState(), faults: make(map[string]error)}
}

// SetFault 令指定操作返回 err，传入 nil 清除
func (m *Memory) SetFault(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (m *Memory) view() *view {
	return &view{data: m.data, faults: m.faults}
}

func (m *Memory) WithTx(ctx context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.view()); err != nil {
		m.data = snapshot
		return err
	}
	if err := m.faults["Commit"]; err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

/**********************************************
 * 测试数据
 **********************************************/

func (m *Memory) AddOfficer(o *domain.Officer) *domain.Officer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		o.ID = m.data.id()
	} else if o.ID > m.data.nextID {
		m.data.nextID = o.ID
	}
	if o.Version == 0 {
		o.Version = 1
	}
	m.data.officers[o.ID] = o.Clone()
	return o
}

func (m *Memory) AddShiftType(st *domain.ShiftType) *domain.ShiftType {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == 0 {
		st.ID = m.data.id()
	}
	c := *st
	m.data.shiftTypes[st.ID] = &c
	return st
}

// AddAssignment 直接写入一条记录，不做 upsert，常用于循环排班模板
func (m *Memory) AddAssignment(a *domain.ScheduleAssignment) *domain.ScheduleAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.data.id()
	m.data.assignments[a.ID] = a.Clone()
	return a
}

func (m *Memory) AddBond(b *domain.PartnershipBond) *domain.PartnershipBond {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.data.id()
	m.data.bonds[b.ID] = b.Clone()
	return b
}

/**********************************************
 * store.Store
 **********************************************/

func (m *Memory) GetOfficer(ctx context.Context, id int64) (*domain.Officer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetOfficer(ctx, id)
}

func (m *Memory) ListOfficers(ctx context.Context) ([]*domain.Officer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListOfficers(ctx)
}

func (m *Memory) UpdateOfficerBalance(ctx context.Context, officerID int64, leave domain.LeaveType, hours decimal.Decimal, version int32) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateOfficerBalance(ctx, officerID, leave, hours, version)
}

func (m *Memory) GetShiftType(ctx context.Context, id int64) (*domain.ShiftType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetShiftType(ctx, id)
}

func (m *Memory) FindAssignments(ctx context.Context, f store.AssignmentFilter) ([]*domain.ScheduleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindAssignments(ctx, f)
}

func (m *Memory) WorkingOfficerIDs(ctx context.Context, date time.Time, shiftTypeID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().WorkingOfficerIDs(ctx, date, shiftTypeID)
}

func (m *Memory) UpsertAssignment(ctx context.Context, a *domain.ScheduleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpsertAssignment(ctx, a)
}

func (m *Memory) DeleteAssignments(ctx context.Context, f store.AssignmentFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteAssignments(ctx, f)
}

func (m *Memory) CountRecentAssignments(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CountRecentAssignments(ctx, from, to)
}

func (m *Memory) FindBonds(ctx context.Context, f store.BondFilter) ([]*domain.PartnershipBond, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindBonds(ctx, f)
}

func (m *Memory) InsertBond(ctx context.Context, b *domain.PartnershipBond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertBond(ctx, b)
}

func (m *Memory) DeleteBond(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteBond(ctx, id)
}

func (m *Memory) InsertPartnershipLog(ctx context.Context, l *domain.PartnershipExceptionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertPartnershipLog(ctx, l)
}

func (m *Memory) FindPartnershipLogs(ctx context.Context, f store.LogFilter) ([]*domain.PartnershipExceptionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindPartnershipLogs(ctx, f)
}

func (m *Memory) ResolvePartnershipLogs(ctx context.Context, f store.LogFilter, resolvedBy string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ResolvePartnershipLogs(ctx, f, resolvedBy, at)
}

/**********************************************
 * view: 不加锁的实现，由 Memory 和 WithTx 共用
 **********************************************/

type view struct {
	data   *state
	faults map[string]error
}

func (v *view) GetOfficer(_ context.Context, id int64) (*domain.Officer, error) {
	if err := v.faults["GetOfficer"]; err != nil {
		return nil, err
	}
	o, ok := v.data.officers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o.Clone(), nil
}

func (v *view) ListOfficers(_ context.Context) ([]*domain.Officer, error) {
	ids := slices.Sorted(maps.Keys(v.data.officers))
	officers := make([]*domain.Officer, 0, len(ids))
	for _, id := range ids {
		officers = append(officers, v.data.officers[id].Clone())
	}
	return officers, nil
}

func (v *view) UpdateOfficerBalance(_ context.Context, officerID int64, leave domain.LeaveType, hours decimal.Decimal, version int32) (int32, error) {
	if err := v.faults["UpdateOfficerBalance"]; err != nil {
		return 0, err
	}
	o, ok := v.data.officers[officerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if o.Version != version {
		return 0, store.ErrVersionConflict
	}
	o.SetBalance(leave, hours)
	o.Version++
	return o.Version, nil
}

func (v *view) GetShiftType(_ context.Context, id int64) (*domain.ShiftType, error) {
	st, ok := v.data.shiftTypes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *st
	return &c, nil
}

func matchAssignment(a *domain.ScheduleAssignment, f store.AssignmentFilter) bool {
	if f.OfficerID != nil && a.OfficerID != *f.OfficerID {
		return false
	}
	if f.PartnerID != nil && (a.PartnerOfficerID == nil || *a.PartnerOfficerID != *f.PartnerID) {
		return false
	}
	if f.ShiftTypeID != nil && a.ShiftTypeID != *f.ShiftTypeID {
		return false
	}
	if f.Date != nil && (a.Date == nil || !domain.Day(*a.Date).Equal(domain.Day(*f.Date))) {
		return false
	}
	if len(f.ScheduleTypes) > 0 && !slices.Contains(f.ScheduleTypes, a.ScheduleType) {
		return false
	}
	return true
}

func (v *view) FindAssignments(_ context.Context, f store.AssignmentFilter) ([]*domain.ScheduleAssignment, error) {
	if err := v.faults["FindAssignments"]; err != nil {
		return nil, err
	}
	result := make([]*domain.ScheduleAssignment, 0)
	for _, id := range slices.Sorted(maps.Keys(v.data.assignments)) {
		a := v.data.assignments[id]
		if matchAssignment(a, f) {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (v *view) WorkingOfficerIDs(_ context.Context, date time.Time, shiftTypeID int64) ([]int64, error) {
	day := domain.Day(date)
	seen := make(map[int64]bool)
	for _, a := range v.data.assignments {
		if a.ShiftTypeID != shiftTypeID || a.IsOff {
			continue
		}
		switch {
		case a.Date != nil && domain.Day(*a.Date).Equal(day):
			seen[a.OfficerID] = true
		case a.Date == nil && a.DayOfWeek != nil && *a.DayOfWeek == day.Weekday():
			seen[a.OfficerID] = true
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (v *view) UpsertAssignment(_ context.Context, a *domain.ScheduleAssignment) error {
	if err := v.faults["UpsertAssignment"]; err != nil {
		return err
	}
	day := domain.Day(*a.Date)
	a.Date = &day
	for id, existing := range v.data.assignments {
		if existing.Date == nil {
			continue
		}
		if existing.OfficerID == a.OfficerID && existing.ShiftTypeID == a.ShiftTypeID &&
			existing.ScheduleType == a.ScheduleType && domain.Day(*existing.Date).Equal(day) {
			a.ID = id
			a.CreatedAt = existing.CreatedAt
			v.data.assignments[id] = a.Clone()
			return nil
		}
	}
	a.ID = v.data.id()
	v.data.assignments[a.ID] = a.Clone()
	return nil
}

func (v *view) DeleteAssignments(_ context.Context, f store.AssignmentFilter) (int64, error) {
	if err := v.faults["DeleteAssignments"]; err != nil {
		return 0, err
	}
	var n int64
	for id, a := range v.data.assignments {
		if matchAssignment(a, f) {
			delete(v.data.assignments, id)
			n++
		}
	}
	return n, nil
}

func (v *view) CountRecentAssignments(_ context.Context, from, to time.Time) (map[int64]int, error) {
	counts := make(map[int64]int)
	for _, a := range v.data.assignments {
		if a.Date == nil || a.IsOff {
			continue
		}
		if !a.Date.Before(from) && a.Date.Before(to) {
			counts[a.OfficerID]++
		}
	}
	return counts, nil
}

func (v *view) FindBonds(_ context.Context, f store.BondFilter) ([]*domain.PartnershipBond, error) {
	if err := v.faults["FindBonds"]; err != nil {
		return nil, err
	}
	result := make([]*domain.PartnershipBond, 0)
	for _, id := range slices.Sorted(maps.Keys(v.data.bonds)) {
		b := v.data.bonds[id]
		if b.ShiftTypeID != f.ShiftTypeID || !b.Matches(f.Date) {
			continue
		}
		if f.OfficerID != nil && !b.Involves(*f.OfficerID) {
			continue
		}
		if f.Kind != nil && b.Kind != *f.Kind {
			continue
		}
		result = append(result, b.Clone())
	}
	return result, nil
}

func (v *view) InsertBond(_ context.Context, b *domain.PartnershipBond) error {
	if err := v.faults["InsertBond"]; err != nil {
		return err
	}
	b.ID = v.data.id()
	v.data.bonds[b.ID] = b.Clone()
	return nil
}

func (v *view) DeleteBond(_ context.Context, id int64) error {
	if _, ok := v.data.bonds[id]; !ok {
		return store.ErrNotFound
	}
	delete(v.data.bonds, id)
	return nil
}

func matchLog(l *domain.PartnershipExceptionLog, f store.LogFilter) bool {
	if f.OfficerID != nil && l.OfficerID != *f.OfficerID {
		return false
	}
	if f.PartnerID != nil && l.PartnerOfficerID != *f.PartnerID {
		return false
	}
	if f.Date != nil && !domain.Day(l.Date).Equal(domain.Day(*f.Date)) {
		return false
	}
	if f.ShiftTypeID != nil && l.ShiftTypeID != *f.ShiftTypeID {
		return false
	}
	if f.ExceptionType != nil && l.ExceptionType != *f.ExceptionType {
		return false
	}
	if f.UnresolvedOnly && l.ResolvedAt != nil {
		return false
	}
	return true
}

func (v *view) InsertPartnershipLog(_ context.Context, l *domain.PartnershipExceptionLog) error {
	if err := v.faults["InsertPartnershipLog"]; err != nil {
		return err
	}
	l.ID = v.data.id()
	v.data.logs[l.ID] = l.Clone()
	return nil
}

func (v *view) FindPartnershipLogs(_ context.Context, f store.LogFilter) ([]*domain.PartnershipExceptionLog, error) {
	result := make([]*domain.PartnershipExceptionLog, 0)
	for _, id := range slices.Sorted(maps.Keys(v.data.logs)) {
		l := v.data.logs[id]
		if matchLog(l, f) {
			result = append(result, l.Clone())
		}
	}
	return result, nil
}

func (v *view) ResolvePartnershipLogs(_ context.Context, f store.LogFilter, resolvedBy string, at time.Time) (int64, error) {
	var n int64
	for _, l := range v.data.logs {
		if l.ResolvedAt != nil || !matchLog(l, f) {
			continue
		}
		resolvedAt := at
		by := resolvedBy
		l.ResolvedAt = &resolvedAt
		l.ResolvedBy = &by
		n++
	}
	return n, nil
}
