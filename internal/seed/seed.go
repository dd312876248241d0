// Package seed 为开发环境生成警员、班次和循环排班，也可以从 CSV 导入真实名册。
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/utils"
	"github.com/shopspring/decimal"
)

// Writer 由 repository.Repository 实现
type Writer interface {
	CreateOfficer(ctx context.Context, o *domain.Officer) error
	CreateShiftType(ctx context.Context, st *domain.ShiftType) error
	CreateAssignment(ctx context.Context, a *domain.ScheduleAssignment) error
	InsertBond(ctx context.Context, b *domain.PartnershipBond) error
}

var DefaultShiftTypes = []domain.ShiftType{
	{Name: "白班", StartTime: "07:00", EndTime: "15:00"},
	{Name: "中班", StartTime: "15:00", EndTime: "23:00"},
	{Name: "夜班", StartTime: "22:00", EndTime: "06:00", CrossesMidnight: true},
}

const workdaysPerWeek = 5

// CSV 表头
const (
	headerFullName   = "姓名"
	headerBadge      = "警号"
	headerRank       = "警衔"
	headerHireDate   = "入职日期"
	headerSergeant   = "晋升中士日期"
	headerLieutenant = "晋升中尉日期"
	headerOverride   = "年资调整"
	headerVacation   = "年假"
	headerSick       = "病假"
	headerComp       = "调休"
	headerHoliday    = "节假日"
	headerActive     = "在职"
)

var requiredHeaders = []string{headerFullName, headerBadge, headerRank}

// ReadOfficersCSV 逐行解析名册，出错时返回行号。日期格式为 YYYY-MM-DD，留空表示没有。
func ReadOfficersCSV(r io.Reader) ([]*domain.Officer, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}
	for _, required := range requiredHeaders {
		if !slices.Contains(headers, required) {
			return nil, fmt.Errorf("缺少列 %q", required)
		}
	}

	officers := make([]*domain.Officer, 0)
	line := 1
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("第 %d 行读取失败: %w", line+1, err)
		}
		line++

		record := make(map[string]string, len(headers))
		for i, value := range row {
			if i < len(headers) {
				record[headers[i]] = strings.TrimSpace(value)
			}
		}

		o, err := parseOfficer(record)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		officers = append(officers, o)
	}

	return officers, nil
}

func parseOfficer(record map[string]string) (*domain.Officer, error) {
	o := &domain.Officer{
		FullName:    record[headerFullName],
		BadgeNumber: record[headerBadge],
		Rank:        domain.Rank(record[headerRank]),
		IsActive:    true,
	}
	if o.FullName == "" || o.BadgeNumber == "" {
		return nil, errors.New("姓名和警号不能为空")
	}
	if !o.Rank.Valid() {
		return nil, fmt.Errorf("无效的警衔 %q", o.Rank)
	}

	var err error
	if o.HireDate, err = parseDate(record[headerHireDate]); err != nil {
		return nil, err
	}
	if o.PromotionDateSergeant, err = parseDate(record[headerSergeant]); err != nil {
		return nil, err
	}
	if o.PromotionDateLieutenant, err = parseDate(record[headerLieutenant]); err != nil {
		return nil, err
	}

	if v := record[headerOverride]; v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("年资调整 %q 不是数字", v)
		}
		o.ServiceCreditOverride = decimal.NewNullDecimal(d)
	}

	balances := []struct {
		header string
		leave  domain.LeaveType
	}{
		{headerVacation, domain.LeaveVacation},
		{headerSick, domain.LeaveSick},
		{headerComp, domain.LeaveComp},
		{headerHoliday, domain.LeaveHoliday},
	}
	for _, b := range balances {
		v := record[b.header]
		if v == "" {
			continue
		}
		hours, err := decimal.NewFromString(v)
		if err != nil || hours.IsNegative() {
			return nil, fmt.Errorf("%s余额 %q 无效", b.header, v)
		}
		o.SetBalance(b.leave, hours)
	}

	if v := record[headerActive]; v == "否" || strings.EqualFold(v, "false") {
		o.IsActive = false
	}

	return o, nil
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("日期 %q 的格式应为 YYYY-MM-DD", v)
	}
	return &t, nil
}

// Plan 是一份每周循环的排班：每对搭档在同一班次的同样几天上班
type Plan struct {
	Assignments []*domain.ScheduleAssignment
	Bonds       []*domain.PartnershipBond
}

// BuildPlan 为在职警员两两配对并分配班次。每名见习警员优先与非见习警员搭档，
// 见习警员之间永远不会配对；剩下的人单独上班。
func BuildPlan(officers []*domain.Officer, shiftTypes []*domain.ShiftType, rng *rand.Rand) *Plan {
	plan := &Plan{
		Assignments: make([]*domain.ScheduleAssignment, 0),
		Bonds:       make([]*domain.PartnershipBond, 0),
	}
	if len(shiftTypes) == 0 {
		return plan
	}

	var probationary, senior []*domain.Officer
	for _, o := range officers {
		if !o.IsActive {
			continue
		}
		if o.IsProbationary() {
			probationary = append(probationary, o)
		} else {
			senior = append(senior, o)
		}
	}
	rng.Shuffle(len(senior), func(i, j int) { senior[i], senior[j] = senior[j], senior[i] })

	var pairs [][2]*domain.Officer
	var solo []*domain.Officer
	for _, ppo := range probationary {
		if len(senior) == 0 {
			solo = append(solo, ppo)
			continue
		}
		pairs = append(pairs, [2]*domain.Officer{ppo, senior[0]})
		senior = senior[1:]
	}
	for len(senior) >= 2 {
		pairs = append(pairs, [2]*domain.Officer{senior[0], senior[1]})
		senior = senior[2:]
	}
	solo = append(solo, senior...)

	for i, pair := range pairs {
		st := shiftTypes[i%len(shiftTypes)]
		for _, day := range utils.GenerateRandomWorkdays(rng, workdaysPerWeek) {
			plan.Assignments = append(plan.Assignments,
				recurring(pair[0].ID, st.ID, day, &pair[1].ID),
				recurring(pair[1].ID, st.ID, day, &pair[0].ID),
			)

			bond := domain.NewBond(pair[0].ID, pair[1].ID, st.ID, domain.BondRegular)
			d := day
			bond.DayOfWeek = &d
			bond.CreatedBy = "seed"
			plan.Bonds = append(plan.Bonds, bond)
		}
	}
	for i, o := range solo {
		st := shiftTypes[(len(pairs)+i)%len(shiftTypes)]
		for _, day := range utils.GenerateRandomWorkdays(rng, workdaysPerWeek) {
			plan.Assignments = append(plan.Assignments, recurring(o.ID, st.ID, day, nil))
		}
	}

	return plan
}

func recurring(officerID, shiftTypeID int64, day time.Weekday, partnerID *int64) *domain.ScheduleAssignment {
	d := day
	a := &domain.ScheduleAssignment{
		OfficerID:    officerID,
		ShiftTypeID:  shiftTypeID,
		DayOfWeek:    &d,
		ScheduleType: domain.ScheduleNormal,
	}
	if partnerID != nil {
		p := *partnerID
		a.PartnerOfficerID = &p
		a.IsPartnership = true
	}
	return a
}

// History 按循环排班展开过去 weeks 周（不含 today）的按日上班记录，供轮换名单统计
func History(plan *Plan, today time.Time, weeks int) []*domain.ScheduleAssignment {
	today = domain.Day(today)
	history := make([]*domain.ScheduleAssignment, 0)
	for offset := weeks * 7; offset >= 1; offset-- {
		date := today.AddDate(0, 0, -offset)
		for _, a := range plan.Assignments {
			if a.DayOfWeek == nil || *a.DayOfWeek != date.Weekday() {
				continue
			}
			d := date
			history = append(history, &domain.ScheduleAssignment{
				OfficerID:    a.OfficerID,
				ShiftTypeID:  a.ShiftTypeID,
				Date:         &d,
				ScheduleType: domain.ScheduleNormal,
			})
		}
	}
	return history
}

// Write 依次写入计划中的循环排班、搭档关系和历史记录，遇到错误立即停止
func Write(ctx context.Context, w Writer, plan *Plan, history []*domain.ScheduleAssignment, logger *slog.Logger) error {
	for _, a := range plan.Assignments {
		if err := w.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("插入循环排班失败: %w", err)
		}
	}
	for _, b := range plan.Bonds {
		if err := w.InsertBond(ctx, b); err != nil {
			return fmt.Errorf("插入搭档关系失败: %w", err)
		}
	}
	for _, a := range history {
		if err := w.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("插入历史排班失败: %w", err)
		}
	}

	logger.Info("插入排班完成",
		slog.Int("assignments", len(plan.Assignments)),
		slog.Int("bonds", len(plan.Bonds)),
		slog.Int("history", len(history)),
	)
	return nil
}

// ShiftTypes 写入默认班次，已存在的同名班次会被更新
func ShiftTypes(ctx context.Context, w Writer) ([]*domain.ShiftType, error) {
	shiftTypes := make([]*domain.ShiftType, 0, len(DefaultShiftTypes))
	for _, st := range DefaultShiftTypes {
		st := st
		if err := utils.ValidateShiftType(&st); err != nil {
			return nil, err
		}
		if err := w.CreateShiftType(ctx, &st); err != nil {
			return nil, fmt.Errorf("插入班次 %s 失败: %w", st.Name, err)
		}
		shiftTypes = append(shiftTypes, &st)
	}
	return shiftTypes, nil
}

// Officers 写入警员，单条失败只记录日志，返回成功写入的警员
func Officers(ctx context.Context, w Writer, officers []*domain.Officer, logger *slog.Logger) []*domain.Officer {
	created := make([]*domain.Officer, 0, len(officers))
	for _, o := range officers {
		if err := w.CreateOfficer(ctx, o); err != nil {
			logger.Error("无法插入警员", slog.String("badge", o.BadgeNumber), slog.String("error", err.Error()))
			continue
		}
		created = append(created, o)
	}
	logger.Info("插入警员成功", slog.Int("count", len(created)))
	return created
}
