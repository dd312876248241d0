package utils

import (
	"fmt"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/shopspring/decimal"
)

const minutesPerDay = 24 * 60

var clockLayouts = []string{"15:04:05", "15:04"}

// ParseClock 将 "HH:MM" 或 "HH:MM:SS" 解析为当天零点起的分钟数
func ParseClock(s string) (int, error) {
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("时间格式错误: %q", s)
}

// DurationMinutes 计算 start 到 end 的分钟数，end 不晚于 start 时视为跨越午夜
func DurationMinutes(start, end string) (int, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return 0, err
	}

	diff := endMin - startMin
	if endMin <= startMin {
		diff += minutesPerDay
	}
	return diff, nil
}

// LeaveHours 以分钟为单位计算请假时长并换算成小时，保留四位小数
func LeaveHours(start, end string) (decimal.Decimal, error) {
	minutes, err := DurationMinutes(start, end)
	if err != nil {
		return decimal.Zero, err
	}
	if minutes <= 0 {
		return decimal.Zero, fmt.Errorf("时长必须大于零: %s-%s", start, end)
	}
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(4), nil
}

// WithinShift 检查 start-end 是否落在班次 shiftStart-shiftEnd 之内，跨午夜的班次按次日时间比较
func WithinShift(shiftStart, shiftEnd, start, end string) error {
	shiftFrom, err := ParseClock(shiftStart)
	if err != nil {
		return err
	}
	shiftLen, err := DurationMinutes(shiftStart, shiftEnd)
	if err != nil {
		return err
	}
	from, err := ParseClock(start)
	if err != nil {
		return err
	}
	length, err := DurationMinutes(start, end)
	if err != nil {
		return err
	}

	if from < shiftFrom {
		from += minutesPerDay
	}
	if from+length > shiftFrom+shiftLen {
		return fmt.Errorf("%s-%s 不在班次时间 %s-%s 内", start, end, shiftStart, shiftEnd)
	}
	return nil
}

// ValidateShiftType 检查班次时间格式，并确认跨午夜标记与起止时间一致
func ValidateShiftType(st *domain.ShiftType) error {
	startMin, err := ParseClock(st.StartTime)
	if err != nil {
		return fmt.Errorf("班次 %s 的开始时间格式错误", st.Name)
	}
	endMin, err := ParseClock(st.EndTime)
	if err != nil {
		return fmt.Errorf("班次 %s 的结束时间格式错误", st.Name)
	}
	if (endMin <= startMin) != st.CrossesMidnight {
		return fmt.Errorf("班次 %s 的跨午夜标记与起止时间不符", st.Name)
	}
	return nil
}
