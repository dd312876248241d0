package domain

import "time"

type BondKind string

const (
	BondRegular   BondKind = "regular"
	BondEmergency BondKind = "emergency"
)

// PartnershipBond 两名警员在某个班次上的搭档关系，以无序对 {OfficerAID, OfficerBID} 为键，
// OfficerAID 总是较小的那个 ID。常规搭档一般按星期循环，紧急搭档只针对某一天。
type PartnershipBond struct {
	ID          int64         `json:"id"`
	OfficerAID  int64         `json:"officerAID"`
	OfficerBID  int64         `json:"officerBID"`
	ShiftTypeID int64         `json:"shiftTypeID"`
	Date        *time.Time    `json:"date"`
	DayOfWeek   *time.Weekday `json:"dayOfWeek"`
	Kind        BondKind      `json:"kind"`
	CreatedBy   string        `json:"createdBy"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func NewBond(a, b, shiftTypeID int64, kind BondKind) *PartnershipBond {
	if a > b {
		a, b = b, a
	}
	return &PartnershipBond{OfficerAID: a, OfficerBID: b, ShiftTypeID: shiftTypeID, Kind: kind}
}

func (b *PartnershipBond) Involves(officerID int64) bool {
	return b.OfficerAID == officerID || b.OfficerBID == officerID
}

// Other 返回搭档关系中的另一方，officerID 不在其中时返回 0
func (b *PartnershipBond) Other(officerID int64) int64 {
	switch officerID {
	case b.OfficerAID:
		return b.OfficerBID
	case b.OfficerBID:
		return b.OfficerAID
	}
	return 0
}

// Matches 判断搭档关系是否在指定日期生效
func (b *PartnershipBond) Matches(date time.Time) bool {
	if b.Date != nil {
		return Day(*b.Date).Equal(Day(date))
	}
	if b.DayOfWeek != nil {
		return *b.DayOfWeek == date.Weekday()
	}
	return false
}

func (b *PartnershipBond) Clone() *PartnershipBond {
	c := *b
	c.Date = cloneTime(b.Date)
	if b.DayOfWeek != nil {
		d := *b.DayOfWeek
		c.DayOfWeek = &d
	}
	return &c
}

type ExceptionType string

const (
	ExceptionPTOSuspension         ExceptionType = "pto_suspension"
	ExceptionEmergencyReassignment ExceptionType = "emergency_reassignment"
)

type PartnershipExceptionLog struct {
	ID                   int64         `json:"id"`
	OfficerID            int64         `json:"officerID"`
	PartnerOfficerID     int64         `json:"partnerOfficerID"`
	Date                 time.Time     `json:"date"`
	ShiftTypeID          int64         `json:"shiftTypeID"`
	Reason               string        `json:"reason"`
	ExceptionType        ExceptionType `json:"exceptionType"`
	CreatedAt            time.Time     `json:"createdAt"`
	ResolvedAt           *time.Time    `json:"resolvedAt"`
	ResolvedBy           *string       `json:"resolvedBy"`
	IsPPOPartnership     bool          `json:"isPPOPartnership"`
	CanEmergencyReassign bool          `json:"canEmergencyReassign"`
}

func (l *PartnershipExceptionLog) Clone() *PartnershipExceptionLog {
	c := *l
	c.ResolvedAt = cloneTime(l.ResolvedAt)
	if l.ResolvedBy != nil {
		s := *l.ResolvedBy
		c.ResolvedBy = &s
	}
	return &c
}
