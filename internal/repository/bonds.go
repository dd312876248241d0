package repository

import (
	"context"
	"fmt"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

func (r *Repository) FindBonds(ctx context.Context, f store.BondFilter) ([]*domain.PartnershipBond, error) {
	day := domain.Day(f.Date)

	c := &conditions{}
	c.add("shift_type_id = $%d", f.ShiftTypeID)
	// 按日搭档或同一星期的循环搭档
	c.args = append(c.args, day, int16(day.Weekday()))
	c.raw(fmt.Sprintf("(date = $%d OR (date IS NULL AND day_of_week = $%d))", len(c.args)-1, len(c.args)))
	if f.OfficerID != nil {
		c.add("(officer_a_id = $%[1]d OR officer_b_id = $%[1]d)", *f.OfficerID)
	}
	if f.Kind != nil {
		c.add("kind = $%d", string(*f.Kind))
	}

	query := `
		SELECT id, officer_a_id, officer_b_id, shift_type_id, date, day_of_week, kind, created_by, created_at
		FROM partnership_bonds` + c.where() + ` ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	bonds := make([]*domain.PartnershipBond, 0)
	for rows.Next() {
		b := &domain.PartnershipBond{}
		dst := []any{&b.ID, &b.OfficerAID, &b.OfficerBID, &b.ShiftTypeID, &b.Date, &b.DayOfWeek, &b.Kind, &b.CreatedBy, &b.CreatedAt}
		if err := rows.Scan(dst...); err != nil {
			return nil, translate(err)
		}
		bonds = append(bonds, b)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return bonds, nil
}

func (r *Repository) InsertBond(ctx context.Context, b *domain.PartnershipBond) error {
	query := `
		INSERT INTO partnership_bonds (officer_a_id, officer_b_id, shift_type_id, date, day_of_week, kind, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	if b.Date != nil {
		day := domain.Day(*b.Date)
		b.Date = &day
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{b.OfficerAID, b.OfficerBID, b.ShiftTypeID, b.Date, weekdayArg(b.DayOfWeek), string(b.Kind), b.CreatedBy}
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.CreatedAt); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) DeleteBond(ctx context.Context, id int64) error {
	query := `DELETE FROM partnership_bonds WHERE id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}
