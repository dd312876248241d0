package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Rank string

const (
	RankProbationary Rank = "probationary"
	RankOfficer      Rank = "officer"
	RankSergeant     Rank = "sergeant"
	RankLieutenant   Rank = "lieutenant"
	RankDeputyChief  Rank = "deputy_chief"
	RankChief        Rank = "chief"
)

func (r Rank) Valid() bool {
	switch r {
	case RankProbationary, RankOfficer, RankSergeant, RankLieutenant, RankDeputyChief, RankChief:
		return true
	}
	return false
}

// IsSupervisor 中士及以上
func (r Rank) IsSupervisor() bool {
	return r == RankSergeant || r == RankLieutenant || r == RankDeputyChief || r == RankChief
}

// IsCommand 中尉以及各级警长
func (r Rank) IsCommand() bool {
	return r == RankLieutenant || r == RankDeputyChief || r == RankChief
}

type Officer struct {
	ID                      int64               `json:"id"`
	FullName                string              `json:"fullName"`
	BadgeNumber             string              `json:"badgeNumber"`
	Rank                    Rank                `json:"rank"`
	HireDate                *time.Time          `json:"hireDate"`
	PromotionDateSergeant   *time.Time          `json:"promotionDateSergeant"`
	PromotionDateLieutenant *time.Time          `json:"promotionDateLieutenant"`
	ServiceCreditOverride   decimal.NullDecimal `json:"serviceCreditOverride"`
	VacationHours           decimal.Decimal     `json:"vacationHours"`
	SickHours               decimal.Decimal     `json:"sickHours"`
	CompHours               decimal.Decimal     `json:"compHours"`
	HolidayHours            decimal.Decimal     `json:"holidayHours"`
	IsActive                bool                `json:"isActive"`
	CreatedAt               time.Time           `json:"createdAt"`
	Version                 int32               `json:"-"`
}

func (o *Officer) IsProbationary() bool {
	return o.Rank == RankProbationary
}

// Surname 取全名中最后一个以空白分隔的片段
func (o *Officer) Surname() string {
	fields := strings.Fields(o.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func (o *Officer) Balance(leave LeaveType) decimal.Decimal {
	switch leave {
	case LeaveVacation:
		return o.VacationHours
	case LeaveSick:
		return o.SickHours
	case LeaveComp:
		return o.CompHours
	case LeaveHoliday:
		return o.HolidayHours
	}
	return decimal.Zero
}

func (o *Officer) SetBalance(leave LeaveType, hours decimal.Decimal) {
	switch leave {
	case LeaveVacation:
		o.VacationHours = hours
	case LeaveSick:
		o.SickHours = hours
	case LeaveComp:
		o.CompHours = hours
	case LeaveHoliday:
		o.HolidayHours = hours
	}
}

func (o *Officer) Clone() *Officer {
	c := *o
	c.HireDate = cloneTime(o.HireDate)
	c.PromotionDateSergeant = cloneTime(o.PromotionDateSergeant)
	c.PromotionDateLieutenant = cloneTime(o.PromotionDateLieutenant)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
