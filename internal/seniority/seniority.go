// Package seniority 计算警员的服务年资（service credit），单位为年。
package seniority

import (
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	daysPerYear   = decimal.NewFromInt(365)
)

type Input struct {
	Rank                    domain.Rank
	HireDate                *time.Time
	PromotionDateSergeant   *time.Time
	PromotionDateLieutenant *time.Time
	Override                decimal.NullDecimal
}

func InputOf(o *domain.Officer) Input {
	return Input{
		Rank:                    o.Rank,
		HireDate:                o.HireDate,
		PromotionDateSergeant:   o.PromotionDateSergeant,
		PromotionDateLieutenant: o.PromotionDateLieutenant,
		Override:                o.ServiceCreditOverride,
	}
}

// Calculate 返回截至 asOf 的年资，结果不小于零。
//
// 非零的 override 优先于任何日期推算。主管级别的年资从晋升到当前级别之日起重新计算，
// 缺少对应晋升日期时退回入职日期。
func Calculate(in Input, asOf time.Time) decimal.Decimal {
	if in.Override.Valid && !in.Override.Decimal.IsZero() {
		return clamp(in.Override.Decimal)
	}

	baseline := Baseline(in)
	if baseline == nil {
		return decimal.Zero
	}
	return clamp(YearsBetween(*baseline, asOf))
}

// For 是 Calculate(InputOf(o), asOf) 的简写
func For(o *domain.Officer, asOf time.Time) decimal.Decimal {
	return Calculate(InputOf(o), asOf)
}

// Baseline 返回计算年资的起始日期，可能为 nil
func Baseline(in Input) *time.Time {
	switch in.Rank {
	case domain.RankSergeant:
		if in.PromotionDateSergeant != nil {
			return in.PromotionDateSergeant
		}
	case domain.RankLieutenant:
		if in.PromotionDateLieutenant != nil {
			return in.PromotionDateLieutenant
		}
	}
	return in.HireDate
}

// YearsBetween = 整年差 + 月差/12 + 日差/365，各分量可以为负
func YearsBetween(from, to time.Time) decimal.Decimal {
	from, to = domain.Day(from), domain.Day(to)

	years := decimal.NewFromInt(int64(to.Year() - from.Year()))
	months := decimal.NewFromInt(int64(to.Month() - from.Month()))
	days := decimal.NewFromInt(int64(to.Day() - from.Day()))

	return years.Add(months.Div(monthsPerYear)).Add(days.Div(daysPerYear)).Round(4)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
