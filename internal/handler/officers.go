package handler

import (
	"net/http"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/ranking"
	"github.com/precinct-ops/duty-roster/backend/internal/seniority"
	"github.com/shopspring/decimal"
)

// 强制派班名单统计最近多少天内的上班次数
const recentWindow = 28 * 24 * time.Hour

func (h *Handler) activeOfficers(r *http.Request) ([]*domain.Officer, error) {
	officers, err := h.store.ListOfficers(r.Context())
	if err != nil {
		return nil, err
	}

	active := make([]*domain.Officer, 0, len(officers))
	for _, o := range officers {
		if o.IsActive {
			active = append(active, o)
		}
	}
	return active, nil
}

func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "asOf", false)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	officers, err := h.activeOfficers(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取花名册成功", ranking.RosterOrder(officers, asOf))
}

func (h *Handler) GetForceList(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "asOf", false)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	officers, err := h.activeOfficers(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	recent, err := h.store.CountRecentAssignments(r.Context(), asOf.Add(-recentWindow), asOf)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取强制派班名单成功", ranking.ForceOrder(officers, asOf, recent))
}

func (h *Handler) GetServiceCredit(w http.ResponseWriter, r *http.Request) {
	officer := r.Context().Value(OfficerCtx).(*domain.Officer)

	asOf, err := h.dateParam(r, "asOf", false)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	in := seniority.InputOf(officer)
	resp := struct {
		OfficerID     int64           `json:"officerID"`
		Rank          domain.Rank     `json:"rank"`
		AsOf          string          `json:"asOf"`
		ServiceCredit decimal.Decimal `json:"serviceCredit"`
		Baseline      *time.Time      `json:"baseline"`
		Overridden    bool            `json:"overridden"`
	}{
		OfficerID:     officer.ID,
		Rank:          officer.Rank,
		AsOf:          domain.DateKey(asOf),
		ServiceCredit: seniority.Calculate(in, asOf),
		Baseline:      seniority.Baseline(in),
		Overridden:    in.Override.Valid && !in.Override.Decimal.IsZero(),
	}

	h.successResponse(w, r, "获取年资成功", resp)
}

func (h *Handler) GetPartnershipStatus(w http.ResponseWriter, r *http.Request) {
	officer := r.Context().Value(OfficerCtx).(*domain.Officer)

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

	status, err := h.services.Ledger.Status(r.Context(), h.store, officer.ID, date, shiftTypeID)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取搭档状态成功", status)
}
