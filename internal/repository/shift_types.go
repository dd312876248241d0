package repository

import (
	"context"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
)

func (r *Repository) GetShiftType(ctx context.Context, id int64) (*domain.ShiftType, error) {
	query := `
		SELECT name, start_time, end_time, crosses_midnight
		FROM shift_types WHERE id = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	st := &domain.ShiftType{ID: id}
	if err := r.q.QueryRowContext(ctx, query, id).Scan(&st.Name, &st.StartTime, &st.EndTime, &st.CrossesMidnight); err != nil {
		return nil, translate(err)
	}

	return st, nil
}

func (r *Repository) ListShiftTypes(ctx context.Context) ([]*domain.ShiftType, error) {
	query := `SELECT id, name, start_time, end_time, crosses_midnight FROM shift_types ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	shiftTypes := make([]*domain.ShiftType, 0)
	for rows.Next() {
		st := &domain.ShiftType{}
		if err := rows.Scan(&st.ID, &st.Name, &st.StartTime, &st.EndTime, &st.CrossesMidnight); err != nil {
			return nil, translate(err)
		}
		shiftTypes = append(shiftTypes, st)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return shiftTypes, nil
}

// CreateShiftType 同名班次已存在时返回已有记录的 id
func (r *Repository) CreateShiftType(ctx context.Context, st *domain.ShiftType) error {
	query := `
		INSERT INTO shift_types (name, start_time, end_time, crosses_midnight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			crosses_midnight = EXCLUDED.crosses_midnight
		RETURNING id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if err := r.q.QueryRowContext(ctx, query, st.Name, st.StartTime, st.EndTime, st.CrossesMidnight).Scan(&st.ID); err != nil {
		return translate(err)
	}

	return nil
}
