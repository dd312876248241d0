package repository

import (
	"context"
	"encoding/json"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
)

// InsertAuditEntry 由审计 worker 调用；同一条消息重复投递时按 id 去重
func (r *Repository) InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	before, err := json.Marshal(entry.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (id, actor, action_type, description, officer_id, date, shift_type_id, before, after, occurred_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, NULLIF($7, 0), $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{
		entry.ID, entry.Actor, string(entry.ActionType), entry.Description, entry.OfficerID, entry.Date, entry.ShiftTypeID,
		string(before), string(after), entry.OccurredAt,
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return translate(err)
	}

	return nil
}
