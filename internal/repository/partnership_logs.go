package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

func logConditions(f store.LogFilter) *conditions {
	c := &conditions{}
	if f.OfficerID != nil {
		c.add("officer_id = $%d", *f.OfficerID)
	}
	if f.PartnerID != nil {
		c.add("partner_officer_id = $%d", *f.PartnerID)
	}
	if f.Date != nil {
		c.add("date = $%d", domain.Day(*f.Date))
	}
	if f.ShiftTypeID != nil {
		c.add("shift_type_id = $%d", *f.ShiftTypeID)
	}
	if f.ExceptionType != nil {
		c.add("exception_type = $%d", string(*f.ExceptionType))
	}
	if f.UnresolvedOnly {
		c.raw("resolved_at IS NULL")
	}
	return c
}

func (r *Repository) InsertPartnershipLog(ctx context.Context, l *domain.PartnershipExceptionLog) error {
	query := `
		INSERT INTO partnership_exception_logs (
			officer_id, partner_officer_id, date, shift_type_id, reason, exception_type,
			is_ppo_partnership, can_emergency_reassign
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{
		l.OfficerID, l.PartnerOfficerID, domain.Day(l.Date), l.ShiftTypeID, l.Reason, string(l.ExceptionType),
		l.IsPPOPartnership, l.CanEmergencyReassign,
	}
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&l.ID, &l.CreatedAt); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) FindPartnershipLogs(ctx context.Context, f store.LogFilter) ([]*domain.PartnershipExceptionLog, error) {
	c := logConditions(f)
	query := `
		SELECT id, officer_id, partner_officer_id, date, shift_type_id, reason, exception_type,
			created_at, resolved_at, resolved_by, is_ppo_partnership, can_emergency_reassign
		FROM partnership_exception_logs` + c.where() + ` ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	logs := make([]*domain.PartnershipExceptionLog, 0)
	for rows.Next() {
		l := &domain.PartnershipExceptionLog{}
		dst := []any{
			&l.ID, &l.OfficerID, &l.PartnerOfficerID, &l.Date, &l.ShiftTypeID, &l.Reason, &l.ExceptionType,
			&l.CreatedAt, &l.ResolvedAt, &l.ResolvedBy, &l.IsPPOPartnership, &l.CanEmergencyReassign,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, translate(err)
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return logs, nil
}

// ResolvePartnershipLogs 关闭所有匹配且尚未关闭的日志
func (r *Repository) ResolvePartnershipLogs(ctx context.Context, f store.LogFilter, resolvedBy string, at time.Time) (int64, error) {
	f.UnresolvedOnly = true
	c := logConditions(f)
	c.args = append(c.args, at, resolvedBy)
	query := fmt.Sprintf(`UPDATE partnership_exception_logs SET resolved_at = $%d, resolved_by = $%d`,
		len(c.args)-1, len(c.args)) + c.where()

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	result, err := r.q.ExecContext(ctx, query, c.args...)
	if err != nil {
		return 0, translate(err)
	}

	return result.RowsAffected()
}
