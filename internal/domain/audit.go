package domain

import "time"

type AuditAction string

const (
	AuditPTOAssigned           AuditAction = "pto_assigned"
	AuditPTORemoved            AuditAction = "pto_removed"
	AuditEmergencyBondCreated  AuditAction = "emergency_bond_created"
	AuditEmergencyBondResolved AuditAction = "emergency_bond_dissolved"
	AuditSettingsChanged       AuditAction = "settings_changed"
)

// AuditEntry 每一次影响假期余额或搭档关系的操作都会产生一条审计记录
type AuditEntry struct {
	ID          string      `json:"id"`
	Actor       string      `json:"actor"`
	ActionType  AuditAction `json:"actionType"`
	Description string      `json:"description"`
	OfficerID   int64       `json:"officerID"`
	Date        *time.Time  `json:"date"`
	ShiftTypeID int64       `json:"shiftTypeID"`
	Before      any         `json:"before"`
	After       any         `json:"after"`
	OccurredAt  time.Time   `json:"occurredAt"`
}
