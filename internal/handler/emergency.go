package handler

import (
	"net/http"

	"github.com/precinct-ops/duty-roster/backend/internal/emergency"
)

func (h *Handler) GetEmergencyCandidates(w http.ResponseWriter, r *http.Request) {
	ppoID, err := h.int64Param(r, "officerID")
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	date, err := h.dateParam(r, "date", true)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	shiftTypeID, err := h.int64Param(r, "shiftTypeID")
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.services.Emergency.FindEmergencyCandidates(r.Context(), ppoID, date, shiftTypeID)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取紧急搭档候选人成功", result)
}

func (h *Handler) CreateEmergencyBond(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PPOID       int64  `json:"ppoID" validate:"required,gt=0"`
		CandidateID int64  `json:"candidateID" validate:"required,gt=0,nefield=PPOID"`
		Date        string `json:"date" validate:"required"`
		ShiftTypeID int64  `json:"shiftTypeID" validate:"required,gt=0"`
		Reason      string `json:"reason" validate:"max=500"`
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

	result, err := h.services.Emergency.CreateEmergencyBond(r.Context(), emergency.BondRequest{
		PPOID:       req.PPOID,
		CandidateID: req.CandidateID,
		Date:        date,
		ShiftTypeID: req.ShiftTypeID,
		Reason:      req.Reason,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "建立紧急搭档成功", result)
}

func (h *Handler) DissolveEmergencyBond(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.services.Emergency.DissolveEmergencyBond(r.Context(), emergency.DissolveRequest{
		OfficerID:   req.OfficerID,
		Date:        date,
		ShiftTypeID: req.ShiftTypeID,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "解除紧急搭档成功", result)
}
