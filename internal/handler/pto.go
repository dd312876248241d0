package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/pto"
)

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.New("日期格式应为 YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) AssignPTO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfficerID   int64  `json:"officerID" validate:"required,gt=0"`
		Date        string `json:"date" validate:"required"`
		ShiftTypeID int64  `json:"shiftTypeID" validate:"required,gt=0"`
		LeaveType   string `json:"leaveType" validate:"required,oneof=vacation sick comp holiday"`
		FullShift   *bool  `json:"fullShift" validate:"required"`
		StartTime   string `json:"startTime"`
		EndTime     string `json:"endTime"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.services.PTO.AssignOrUpdatePTO(r.Context(), pto.AssignRequest{
		OfficerID:   req.OfficerID,
		Date:        date,
		ShiftTypeID: req.ShiftTypeID,
		LeaveType:   domain.LeaveType(req.LeaveType),
		FullShift:   *req.FullShift,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "登记请假成功", result)
}

func (h *Handler) RemovePTO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfficerID   int64  `json:"officerID" validate:"required,gt=0"`
		Date        string `json:"date" validate:"required"`
		ShiftTypeID int64  `json:"shiftTypeID" validate:"required,gt=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.services.PTO.RemovePTO(r.Context(), pto.RemoveRequest{
		OfficerID:   req.OfficerID,
		Date:        date,
		ShiftTypeID: req.ShiftTypeID,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "撤销请假成功", result)
}
