// Package ranking 为花名册和强制派班名单（force list）排序警员。
package ranking

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/seniority"
	"github.com/shopspring/decimal"
)

// 缺失或非数字的警号排在最后
const badgeSentinel = math.MaxInt

type Entry struct {
	Officer           *domain.Officer `json:"officer"`
	ServiceCredit     decimal.Decimal `json:"serviceCredit"`
	Tier              int             `json:"tier"`
	RecentAssignments int             `json:"recentAssignments"`

	badge   int
	surname string
}

func rosterTier(r domain.Rank) int {
	switch {
	case r.IsCommand():
		return 0
	case r == domain.RankSergeant:
		return 1
	case r == domain.RankOfficer:
		return 2
	case r == domain.RankProbationary:
		return 3
	}
	return 4
}

// forceTier 返回 false 表示该级别不参与强制派班
func forceTier(r domain.Rank) (int, bool) {
	switch r {
	case domain.RankSergeant:
		return 0, true
	case domain.RankOfficer:
		return 1, true
	case domain.RankProbationary:
		return 2, true
	}
	return 0, false
}

func newEntry(o *domain.Officer, asOf time.Time, tier int) Entry {
	return Entry{
		Officer:       o,
		ServiceCredit: seniority.For(o, asOf),
		Tier:          tier,
		badge:         BadgeKey(o.BadgeNumber),
		surname:       SurnameKey(o.Surname()),
	}
}

// RosterOrder 中尉及警长 > 中士 > 警员 > 见习警员；同级内年资降序、警号升序、姓氏升序
func RosterOrder(officers []*domain.Officer, asOf time.Time) []Entry {
	entries := make([]Entry, 0, len(officers))
	for _, o := range officers {
		entries = append(entries, newEntry(o, asOf, rosterTier(o.Rank)))
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Tier, b.Tier),
			b.ServiceCredit.Cmp(a.ServiceCredit),
			cmp.Compare(a.badge, b.badge),
			cmp.Compare(a.surname, b.surname),
		)
	})
	return entries
}

// ForceOrder 中士 > 警员 > 见习警员，不含中尉及警长；同级内年资升序、近期派班次数升序、姓氏升序
func ForceOrder(officers []*domain.Officer, asOf time.Time, recent map[int64]int) []Entry {
	entries := make([]Entry, 0, len(officers))
	for _, o := range officers {
		tier, ok := forceTier(o.Rank)
		if !ok {
			continue
		}
		e := newEntry(o, asOf, tier)
		e.RecentAssignments = recent[o.ID]
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Tier, b.Tier),
			a.ServiceCredit.Cmp(b.ServiceCredit),
			cmp.Compare(a.RecentAssignments, b.RecentAssignments),
			cmp.Compare(a.surname, b.surname),
		)
	})
	return entries
}

func Officers(entries []Entry) []*domain.Officer {
	officers := make([]*domain.Officer, len(entries))
	for i, e := range entries {
		officers[i] = e.Officer
	}
	return officers
}

func BadgeKey(badge string) int {
	n, err := strconv.Atoi(strings.TrimSpace(badge))
	if err != nil {
		return badgeSentinel
	}
	return n
}

var pinyinArgs = pinyin.NewArgs()

// SurnameKey 生成姓氏的排序键：统一小写，汉字转为不带声调的拼音
func SurnameKey(surname string) string {
	var b strings.Builder
	for _, r := range surname {
		if unicode.Is(unicode.Han, r) {
			if py := pinyin.LazyConvert(string(r), &pinyinArgs); len(py) > 0 {
				b.WriteString(py[0])
				continue
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
