package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/service"
	"github.com/go-chi/chi/v5"
)

// RegistryService defines the farmer and loan operations required by the handler.
type RegistryService interface {
	ListFarmers(ctx context.Context) ([]models.Farmer, error)
	SaveFarmer(ctx context.Context, f models.Farmer) (*models.Farmer, error)
	ListLoans(ctx context.Context, farmerID string) ([]models.Loan, error)
	SaveLoan(ctx context.Context, l models.Loan) (*models.Loan, error)
	UpdateLoanStatus(ctx context.Context, id string, upd models.LoanStatusUpdate) (*models.Loan, error)
}

// RegistryHandler serves /api/farmers, /api/loans and /api/schemes.
type RegistryHandler struct {
	RegistryService RegistryService
}

// ListFarmers handles GET /api/farmers.
func (h *RegistryHandler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.RegistryService.ListFarmers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farmers)
}

// SaveFarmer handles POST /api/farmers.
func (h *RegistryHandler) SaveFarmer(w http.ResponseWriter, r *http.Request) {
	var f models.Farmer
	if !decode(w, r, &f) {
		return
	}
	saved, err := h.RegistryService.SaveFarmer(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ListLoans handles GET /api/loans[?farmerId=X].
func (h *RegistryHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.RegistryService.ListLoans(r.Context(), r.URL.Query().Get("farmerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// SaveLoan handles POST /api/loans.
func (h *RegistryHandler) SaveLoan(w http.ResponseWriter, r *http.Request) {
	var l models.Loan
	if !decode(w, r, &l) {
		return
	}
	saved, err := h.RegistryService.SaveLoan(r.Context(), l)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// UpdateLoanStatus handles POST /api/loans/{id}/status.
func (h *RegistryHandler) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	var upd models.LoanStatusUpdate
	if !decode(w, r, &upd) {
		return
	}
	l, err := h.RegistryService.UpdateLoanStatus(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// CheckSchemes handles POST /api/schemes/check.
func (h *RegistryHandler) CheckSchemes(w http.ResponseWriter, r *http.Request) {
	var q service.SchemeQuery
	if !decode(w, r, &q) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eligibleSchemes": service.CheckSchemes(q)})
}
