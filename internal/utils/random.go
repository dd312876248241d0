package utils

import (
	"math/rand"
	"strings"
	"time"

	"github.com/mozillazg/go-pinyin"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/shopspring/decimal"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

// GenerateRandomChineseName 名在前姓在后，以空格分隔，使 Officer.Surname 取到姓
func GenerateRandomChineseName(rng *rand.Rand) string {
	surname := commonSurnames[rng.Intn(len(commonSurnames))]
	nameLength := rng.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rng.Intn(len(commonNameCharacters))]
	}
	return name + " " + surname
}

var digits = "0123456789"

// GenerateBadgeNumber 由姓名拼音首字母加若干数字组成，例如 WQ0417
func GenerateBadgeNumber(rng *rand.Rand, fullName string) string {
	badge := ""
	for _, p := range pinyin.LazyConvert(strings.ReplaceAll(fullName, " ", ""), nil) {
		badge += strings.ToUpper(p[:1])
	}

	for i := 0; i < 4; i++ {
		badge += string(digits[rng.Intn(len(digits))])
	}
	return badge
}

// 非见习警员的警衔分布，普通警员最多
var seniorRanks = []domain.Rank{
	domain.RankOfficer, domain.RankOfficer, domain.RankOfficer, domain.RankOfficer,
	domain.RankSergeant, domain.RankSergeant,
	domain.RankLieutenant,
}

func randomHours(rng *rand.Rand, max int) decimal.Decimal {
	return decimal.New(int64(rng.Intn(max*2+1)), 0).Div(decimal.NewFromInt(2))
}

func daysBefore(t time.Time, days int) *time.Time {
	d := domain.Day(t.AddDate(0, 0, -days))
	return &d
}

// GenerateRandomOfficer 生成一名在职警员，probationRate 为见习警员所占的百分比。
// 入职与晋升日期相互一致：晋升中尉晚于晋升中士，晋升中士晚于入职。
func GenerateRandomOfficer(rng *rand.Rand, now time.Time, probationRate int) *domain.Officer {
	fullName := GenerateRandomChineseName(rng)
	o := &domain.Officer{
		FullName:      fullName,
		BadgeNumber:   GenerateBadgeNumber(rng, fullName),
		VacationHours: randomHours(rng, 120),
		SickHours:     randomHours(rng, 80),
		CompHours:     randomHours(rng, 40),
		HolidayHours:  randomHours(rng, 24),
		IsActive:      true,
	}

	if rng.Intn(100) < probationRate {
		o.Rank = domain.RankProbationary
		o.HireDate = daysBefore(now, rng.Intn(365))
		return o
	}

	o.Rank = seniorRanks[rng.Intn(len(seniorRanks))]
	hiredDaysAgo := 365 + rng.Intn(365*20)
	o.HireDate = daysBefore(now, hiredDaysAgo)

	if o.Rank == domain.RankSergeant || o.Rank == domain.RankLieutenant {
		sergeantDaysAgo := rng.Intn(hiredDaysAgo-180) + 1
		o.PromotionDateSergeant = daysBefore(now, sergeantDaysAgo)
		if o.Rank == domain.RankLieutenant {
			o.PromotionDateLieutenant = daysBefore(now, rng.Intn(sergeantDaysAgo))
		}
	}

	return o
}

// GenerateRandomWorkdays 从随机的一天开始连续取 n 天
func GenerateRandomWorkdays(rng *rand.Rand, n int) []time.Weekday {
	if n > 7 {
		n = 7
	}
	start := time.Weekday(rng.Intn(7))
	workdays := make([]time.Weekday, n)
	for i := range workdays {
		workdays[i] = (start + time.Weekday(i)) % 7
	}
	return workdays
}
