package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/go-chi/chi/v5"
)

// ApplicationService defines the application operations required by the handler.
type ApplicationService interface {
	List(ctx context.Context, status models.Status) ([]models.Application, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	CreateOrReplace(ctx context.Context, app models.Application) (*models.Application, error)
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error)
	Stats(ctx context.Context) (*models.ApplicationStats, error)
}

// ApplicationHandler serves /api/loan-applications.
type ApplicationHandler struct {
	ApplicationService ApplicationService
}

// List handles GET /api/loan-applications[?status=X].
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.ApplicationService.List(r.Context(), models.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// Get handles GET /api/loan-applications/{id}.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.ApplicationService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Upsert handles POST /api/loan-applications and returns the stored record.
func (h *ApplicationHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if !decode(w, r, &app) {
		return
	}
	stored, err := h.ApplicationService.CreateOrReplace(r.Context(), app)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// UpdateStatus handles POST /api/loan-applications/{id}/status.
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var upd models.StatusUpdate
	if !decode(w, r, &upd) {
		return
	}
	app, err := h.ApplicationService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Stats handles GET /api/loan-applications/stats.
func (h *ApplicationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.ApplicationService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
