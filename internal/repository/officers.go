package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/shopspring/decimal"
)

const officerColumns = `
	id, full_name, badge_number, rank, hire_date, promotion_date_sergeant, promotion_date_lieutenant,
	service_credit_override, vacation_hours, sick_hours, comp_hours, holiday_hours, is_active, created_at, version
`

func officerDst(o *domain.Officer) []any {
	return []any{
		&o.ID, &o.FullName, &o.BadgeNumber, &o.Rank, &o.HireDate, &o.PromotionDateSergeant, &o.PromotionDateLieutenant,
		&o.ServiceCreditOverride, &o.VacationHours, &o.SickHours, &o.CompHours, &o.HolidayHours, &o.IsActive, &o.CreatedAt, &o.Version,
	}
}

var balanceColumns = map[domain.LeaveType]string{
	domain.LeaveVacation: "vacation_hours",
	domain.LeaveSick:     "sick_hours",
	domain.LeaveComp:     "comp_hours",
	domain.LeaveHoliday:  "holiday_hours",
}

func (r *Repository) GetOfficer(ctx context.Context, id int64) (*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM officers WHERE id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	officer := &domain.Officer{}
	if err := r.q.QueryRowContext(ctx, query, id).Scan(officerDst(officer)...); err != nil {
		return nil, translate(err)
	}

	return officer, nil
}

func (r *Repository) ListOfficers(ctx context.Context) ([]*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM officers ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	officers := make([]*domain.Officer, 0)
	for rows.Next() {
		officer := &domain.Officer{}
		if err := rows.Scan(officerDst(officer)...); err != nil {
			return nil, translate(err)
		}
		officers = append(officers, officer)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return officers, nil
}

// UpdateOfficerBalance 以 version 为条件更新一种假期余额
func (r *Repository) UpdateOfficerBalance(ctx context.Context, officerID int64, leave domain.LeaveType, hours decimal.Decimal, version int32) (int32, error) {
	column, ok := balanceColumns[leave]
	if !ok {
		return 0, fmt.Errorf("未知的假期类型: %s", leave)
	}

	query := fmt.Sprintf(`
		UPDATE officers
		SET %s = $1, version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING version
	`, column)

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var newVersion int32
	if err := r.q.QueryRowContext(ctx, query, hours, officerID, version).Scan(&newVersion); err != nil {
		err = translate(err)
		if errors.Is(err, store.ErrNotFound) {
			// id 存在但 version 不匹配时同样查不到行
			if _, getErr := r.GetOfficer(ctx, officerID); getErr == nil {
				return 0, store.ErrVersionConflict
			}
		}
		return 0, err
	}

	return newVersion, nil
}

func (r *Repository) CreateOfficer(ctx context.Context, o *domain.Officer) error {
	query := `
		INSERT INTO officers (
			full_name, badge_number, rank, hire_date, promotion_date_sergeant, promotion_date_lieutenant,
			service_credit_override, vacation_hours, sick_hours, comp_hours, holiday_hours, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{
		o.FullName, o.BadgeNumber, string(o.Rank), o.HireDate, o.PromotionDateSergeant, o.PromotionDateLieutenant,
		o.ServiceCreditOverride, o.VacationHours, o.SickHours, o.CompHours, o.HolidayHours, o.IsActive,
	}
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&o.ID, &o.CreatedAt, &o.Version); err != nil {
		return translate(err)
	}

	return nil
}
