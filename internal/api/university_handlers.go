package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/massy-ia/citydesk/internal/store"
)

type researchRequest struct {
	Query string `json:"query" validate:"max=200"`
}

func (h *Handler) Research(w http.ResponseWriter, r *http.Request, caller *store.User) {
	var req researchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.deps.Research.Research(r.Context(), caller, req.Query)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "research project created", result)
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request, caller *store.User) {
	projects, err := h.deps.Research.Projects(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d projects retrieved", len(projects)), map[string]any{"projects": projects})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request, caller *store.User) {
	project, err := h.deps.Research.Project(r.Context(), caller, chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "project retrieved", project)
}
