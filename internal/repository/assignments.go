package repository

import (
	"context"
	"errors"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

const assignmentColumns = `
	id, officer_id, shift_type_id, date, day_of_week, is_off, partner_officer_id, is_partnership,
	partnership_suspended, suspension_reason, schedule_type, leave_type, hours, is_partial_shift,
	custom_start_time, custom_end_time, balance_deducted, created_at
`

func assignmentDst(a *domain.ScheduleAssignment) []any {
	return []any{
		&a.ID, &a.OfficerID, &a.ShiftTypeID, &a.Date, &a.DayOfWeek, &a.IsOff, &a.PartnerOfficerID, &a.IsPartnership,
		&a.PartnershipSuspended, &a.SuspensionReason, &a.ScheduleType, &a.LeaveType, &a.Hours, &a.IsPartialShift,
		&a.CustomStartTime, &a.CustomEndTime, &a.BalanceDeducted, &a.CreatedAt,
	}
}

func assignmentConditions(f store.AssignmentFilter) *conditions {
	c := &conditions{}
	if f.OfficerID != nil {
		c.add("officer_id = $%d", *f.OfficerID)
	}
	if f.PartnerID != nil {
		c.add("partner_officer_id = $%d", *f.PartnerID)
	}
	if f.ShiftTypeID != nil {
		c.add("shift_type_id = $%d", *f.ShiftTypeID)
	}
	if f.Date != nil {
		c.add("date = $%d", domain.Day(*f.Date))
	}
	if len(f.ScheduleTypes) > 0 {
		c.add("schedule_type = ANY($%d)", stringsOf(f.ScheduleTypes))
	}
	return c
}

func (r *Repository) FindAssignments(ctx context.Context, f store.AssignmentFilter) ([]*domain.ScheduleAssignment, error) {
	c := assignmentConditions(f)
	query := `SELECT ` + assignmentColumns + ` FROM schedule_assignments` + c.where() + ` ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	assignments := make([]*domain.ScheduleAssignment, 0)
	for rows.Next() {
		a := &domain.ScheduleAssignment{}
		if err := rows.Scan(assignmentDst(a)...); err != nil {
			return nil, translate(err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return assignments, nil
}

func (r *Repository) WorkingOfficerIDs(ctx context.Context, date time.Time, shiftTypeID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT officer_id
		FROM schedule_assignments
		WHERE shift_type_id = $1
			AND is_off = FALSE
			AND (date = $2 OR (date IS NULL AND day_of_week = $3))
		ORDER BY officer_id
	`

	day := domain.Day(date)

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, shiftTypeID, day, int16(day.Weekday()))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return ids, nil
}

// UpsertAssignment 以 (officer_id, date, shift_type_id, schedule_type) 为键，已存在时覆盖除 created_at 以外的字段
func (r *Repository) UpsertAssignment(ctx context.Context, a *domain.ScheduleAssignment) error {
	if a.Date == nil {
		return errors.New("只能 upsert 按日例外记录")
	}

	query := `
		INSERT INTO schedule_assignments (
			officer_id, shift_type_id, date, is_off, partner_officer_id, is_partnership,
			partnership_suspended, suspension_reason, schedule_type, leave_type, hours, is_partial_shift,
			custom_start_time, custom_end_time, balance_deducted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (officer_id, date, shift_type_id, schedule_type) WHERE date IS NOT NULL
		DO UPDATE SET
			is_off = EXCLUDED.is_off,
			partner_officer_id = EXCLUDED.partner_officer_id,
			is_partnership = EXCLUDED.is_partnership,
			partnership_suspended = EXCLUDED.partnership_suspended,
			suspension_reason = EXCLUDED.suspension_reason,
			leave_type = EXCLUDED.leave_type,
			hours = EXCLUDED.hours,
			is_partial_shift = EXCLUDED.is_partial_shift,
			custom_start_time = EXCLUDED.custom_start_time,
			custom_end_time = EXCLUDED.custom_end_time,
			balance_deducted = EXCLUDED.balance_deducted
		RETURNING id, created_at
	`

	day := domain.Day(*a.Date)
	a.Date = &day

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{
		a.OfficerID, a.ShiftTypeID, day, a.IsOff, a.PartnerOfficerID, a.IsPartnership,
		a.PartnershipSuspended, a.SuspensionReason, string(a.ScheduleType), string(a.LeaveType), a.Hours, a.IsPartialShift,
		a.CustomStartTime, a.CustomEndTime, a.BalanceDeducted,
	}
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return translate(err)
	}

	return nil
}

// CreateAssignment 直接插入一条记录，用于写入循环排班模板
func (r *Repository) CreateAssignment(ctx context.Context, a *domain.ScheduleAssignment) error {
	query := `
		INSERT INTO schedule_assignments (
			officer_id, shift_type_id, date, day_of_week, is_off, partner_officer_id, is_partnership, schedule_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{
		a.OfficerID, a.ShiftTypeID, a.Date, weekdayArg(a.DayOfWeek), a.IsOff, a.PartnerOfficerID, a.IsPartnership,
		string(a.ScheduleType),
	}
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) DeleteAssignments(ctx context.Context, f store.AssignmentFilter) (int64, error) {
	c := assignmentConditions(f)
	if len(c.clauses) == 0 {
		return 0, errors.New("删除排班记录必须指定过滤条件")
	}
	query := `DELETE FROM schedule_assignments` + c.where()

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	result, err := r.q.ExecContext(ctx, query, c.args...)
	if err != nil {
		return 0, translate(err)
	}

	return result.RowsAffected()
}

// CountRecentAssignments 统计 [from, to) 内每名警员的按日上班记录数
func (r *Repository) CountRecentAssignments(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	query := `
		SELECT officer_id, COUNT(*)
		FROM schedule_assignments
		WHERE date >= $1 AND date < $2 AND is_off = FALSE
		GROUP BY officer_id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, domain.Day(from), domain.Day(to))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, translate(err)
		}
		counts[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return counts, nil
}
