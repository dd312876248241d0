package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
}

func (h *Handler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
		http.Error(w, "服务器内部错误", http.StatusInternalServerError)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Data:    nil,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		h.errorResponse(w, r, err.Error())
		return
	}

	h.errorResponse(w, r, validationErrors[0].Translate(h.translator))
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "服务器内部错误",
		Data:    nil,
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

var errorMessages = map[error]string{
	domain.ErrInvalidTimeRange:       "时间范围无效",
	domain.ErrOfficerOrShiftNotFound: "警员或班次不存在",
	domain.ErrInvalidLeaveType:       "假期类型无效",
	domain.ErrPTONotFound:            "请假记录不存在",
	domain.ErrInsufficientBalance:    "假期余额不足",
	domain.ErrProbationaryPairing:    "见习警员之间不能搭档",
	domain.ErrNotEmergencyEligible:   "该警员不符合紧急调配条件",
	domain.ErrCandidateIneligible:    "候选人不能担任临时搭档",
	domain.ErrEmergencyBondMissing:   "紧急搭档不存在",
	domain.ErrPartnershipMissing:     "搭档记录缺失，操作已中止",
	domain.ErrPartnershipDuplicated:  "搭档记录重复，操作已中止",
	domain.ErrStoreRejected:          "数据写入失败，操作已中止",
	domain.ErrTransientStore:         "存储暂时不可用，请稍后重试",
	domain.ErrSlotBusy:               "该班次正在被其他操作修改，请稍后重试",
}

// ErrorData 随错误响应返回的上下文，方便前端定位到具体的警员、日期和班次
type ErrorData struct {
	Kind        domain.ErrorKind `json:"kind"`
	OfficerID   int64            `json:"officerID,omitempty"`
	Date        string           `json:"date,omitempty"`
	ShiftTypeID int64            `json:"shiftTypeID,omitempty"`
	Field       string           `json:"field,omitempty"`
	Detail      string           `json:"detail,omitempty"`
}

// engineError 将引擎返回的错误转换为响应；可重试的错误返回 503
func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.internalServerError(w, r, err)
		return
	}

	msg, ok := errorMessages[de.Err]
	if !ok {
		msg = de.Err.Error()
	}

	data := ErrorData{
		Kind:        de.Kind,
		OfficerID:   de.OfficerID,
		ShiftTypeID: de.ShiftTypeID,
		Field:       de.Field,
		Detail:      de.Detail,
	}
	if !de.Date.IsZero() {
		data.Date = domain.DateKey(de.Date)
	}

	status := http.StatusOK
	switch de.Kind {
	case domain.KindTransientStore:
		status = http.StatusServiceUnavailable
		slog.Warn("存储暂时不可用", "method", r.Method, "path", r.URL.Path, "error", err)
	case domain.KindConsistency:
		slog.Error("数据不一致，操作已中止", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	h.writeJSON(w, r, status, Response{
		Success: false,
		Message: msg,
		Data:    data,
	})
}

// dateParam 解析 YYYY-MM-DD 格式的查询参数，缺省时返回今天
func (h *Handler) dateParam(r *http.Request, name string, required bool) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		if required {
			return time.Time{}, errors.New("缺少参数 " + name)
		}
		return domain.Day(h.now()), nil
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.New("参数 " + name + " 的日期格式应为 YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) int64Param(r *http.Request, name string) (int64, error) {
	value := r.URL.Query().Get(name)
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("参数 " + name + " 无效")
	}
	return id, nil
}
