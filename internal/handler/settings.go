package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
)

type ptoBalancesSetting struct {
	Enabled  bool     `json:"enabled"`
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) GetPTOBalancesSetting(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.services.Settings.PTOBalancesEnabled(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取假期余额设置成功", ptoBalancesSetting{Enabled: enabled})
}

func (h *Handler) UpdatePTOBalancesSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	before, err := h.services.Settings.PTOBalancesEnabled(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if err := h.services.Settings.SetPTOBalancesEnabled(r.Context(), *req.Enabled); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	warnings := audit.Report(r.Context(), h.services.Audit, slog.Default(), &domain.AuditEntry{
		Actor:       actorFrom(r.Context()),
		ActionType:  domain.AuditSettingsChanged,
		Description: "假期余额跟踪: " + strconv.FormatBool(before) + " -> " + strconv.FormatBool(*req.Enabled),
		Before:      before,
		After:       *req.Enabled,
	})

	h.successResponse(w, r, "更新假期余额设置成功", ptoBalancesSetting{Enabled: *req.Enabled, Warnings: warnings})
}
