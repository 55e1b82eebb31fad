package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/massy-ia/citydesk/internal/store"
)

type updateAlertRequest struct {
	Status string `json:"status" validate:"omitempty,oneof=new in_progress resolved"`
}

func (h *Handler) DetectSuspects(w http.ResponseWriter, r *http.Request, caller *store.User) {
	alerts, err := h.deps.Police.DetectSuspects(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "simulated alerts generated", map[string]any{"alerts": alerts})
}

func (h *Handler) OptimizePatrols(w http.ResponseWriter, r *http.Request, _ *store.User) {
	plan, err := h.deps.Police.OptimizePatrols(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := fmt.Sprintf("%d routes optimised from %d alerts", len(plan.Routes), plan.AlertCount)
	if plan.AlertCount == 0 {
		message = "no recent alerts, standard patrols recommended"
	}
	respond(w, http.StatusOK, message, map[string]any{
		"optimized_routes": len(plan.Routes),
		"routes":           plan.Routes,
	})
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request, _ *store.User) {
	riskLevel, err := queryInt(r, "risk_level", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	alerts, err := h.deps.Police.Alerts(r.Context(), r.URL.Query().Get("status"), riskLevel)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "alerts retrieved", map[string]any{"alerts": alerts})
}

func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request, _ *store.User) {
	var req updateAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	alert, err := h.deps.Police.UpdateAlert(r.Context(), chi.URLParam(r, "alertID"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "alert updated", map[string]any{"alert": alert})
}
