package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ScheduleType string

const (
	ScheduleNormal                  ScheduleType = "normal"
	SchedulePTO                     ScheduleType = "pto"
	ScheduleWorkingPartnerSuspended ScheduleType = "working_partner_suspended"
	ScheduleEmergencyPartnership    ScheduleType = "emergency_partnership"
)

type LeaveType string

const (
	LeaveVacation LeaveType = "vacation"
	LeaveSick     LeaveType = "sick"
	LeaveComp     LeaveType = "comp"
	LeaveHoliday  LeaveType = "holiday"
)

func (l LeaveType) Valid() bool {
	switch l {
	case LeaveVacation, LeaveSick, LeaveComp, LeaveHoliday:
		return true
	}
	return false
}

// ScheduleAssignment 既可以是按星期循环的模板（DayOfWeek 非空），也可以是某一天的例外记录（Date 非空）
type ScheduleAssignment struct {
	ID                   int64           `json:"id"`
	OfficerID            int64           `json:"officerID"`
	ShiftTypeID          int64           `json:"shiftTypeID"`
	Date                 *time.Time      `json:"date"`
	DayOfWeek            *time.Weekday   `json:"dayOfWeek"`
	IsOff                bool            `json:"isOff"`
	PartnerOfficerID     *int64          `json:"partnerOfficerID"`
	IsPartnership        bool            `json:"isPartnership"`
	PartnershipSuspended bool            `json:"partnershipSuspended"`
	SuspensionReason     string          `json:"suspensionReason"`
	ScheduleType         ScheduleType    `json:"scheduleType"`
	LeaveType            LeaveType       `json:"leaveType,omitempty"`
	Hours                decimal.Decimal `json:"hours"`
	IsPartialShift       bool            `json:"isPartialShift"`
	// BalanceDeducted 创建时是否已从余额中扣除，销假时据此决定是否退回
	BalanceDeducted bool      `json:"balanceDeducted"`
	CustomStartTime *string   `json:"customStartTime"`
	CustomEndTime   *string   `json:"customEndTime"`
	CreatedAt       time.Time `json:"createdAt"`
}

// IsPTOException 判断该记录是否为请假例外
func (a *ScheduleAssignment) IsPTOException() bool {
	return a.IsOff && a.ScheduleType == SchedulePTO
}

func (a *ScheduleAssignment) Clone() *ScheduleAssignment {
	c := *a
	c.Date = cloneTime(a.Date)
	if a.DayOfWeek != nil {
		d := *a.DayOfWeek
		c.DayOfWeek = &d
	}
	if a.PartnerOfficerID != nil {
		p := *a.PartnerOfficerID
		c.PartnerOfficerID = &p
	}
	if a.CustomStartTime != nil {
		s := *a.CustomStartTime
		c.CustomStartTime = &s
	}
	if a.CustomEndTime != nil {
		e := *a.CustomEndTime
		c.CustomEndTime = &e
	}
	return &c
}

// Day 将时间截断到 UTC 零点，所有以日期为键的查询都使用它
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
