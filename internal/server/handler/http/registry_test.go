package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/FarmCredit/internal/models"
	handler "github.com/atinyakov/FarmCredit/internal/server/handler/http"
)

// fakeRegistryService records calls and returns preconfigured results.
type fakeRegistryService struct {
	gotFarmerID string
	gotLoanID   string
	gotFarmer   models.Farmer
	gotUpdate   models.LoanStatusUpdate

	farmers []models.Farmer
	loans   []models.Loan
	loan    *models.Loan
	err     error
}

func (f *fakeRegistryService) ListFarmers(context.Context) ([]models.Farmer, error) {
	return f.farmers, f.err
}

func (f *fakeRegistryService) SaveFarmer(_ context.Context, fm models.Farmer) (*models.Farmer, error) {
	f.gotFarmer = fm
	if f.err != nil {
		return nil, f.err
	}
	return &fm, nil
}

func (f *fakeRegistryService) ListLoans(_ context.Context, farmerID string) ([]models.Loan, error) {
	f.gotFarmerID = farmerID
	return f.loans, f.err
}

func (f *fakeRegistryService) SaveLoan(_ context.Context, l models.Loan) (*models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &l, nil
}

func (f *fakeRegistryService) UpdateLoanStatus(_ context.Context, id string, upd models.LoanStatusUpdate) (*models.Loan, error) {
	f.gotLoanID = id
	f.gotUpdate = upd
	return f.loan, f.err
}

func TestRegistryHandler_ListLoansByFarmer(t *testing.T) {
	fake := &fakeRegistryService{loans: []models.Loan{{ID: "l1", FarmerID: "f1"}}}
	h := &handler.RegistryHandler{RegistryService: fake}

	w := httptest.NewRecorder()
	h.ListLoans(w, httptest.NewRequest(http.MethodGet, "/api/loans?farmerId=f1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if fake.gotFarmerID != "f1" {
		t.Errorf("farmerId = %q; want f1", fake.gotFarmerID)
	}
}

func TestRegistryHandler_SaveFarmer(t *testing.T) {
	fake := &fakeRegistryService{}
	h := &handler.RegistryHandler{RegistryService: fake}

	b, _ := json.Marshal(models.Farmer{ID: "f9", Name: "Sita Devi", Village: "Rampur"})
	w := httptest.NewRecorder()
	h.SaveFarmer(w, httptest.NewRequest(http.MethodPost, "/api/farmers", bytes.NewReader(b)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if fake.gotFarmer.Name != "Sita Devi" {
		t.Errorf("farmer = %+v", fake.gotFarmer)
	}
}

func TestRegistryHandler_UpdateLoanStatus(t *testing.T) {
	fake := &fakeRegistryService{loan: &models.Loan{ID: "l1", Status: models.LoanApproved}}
	h := &handler.RegistryHandler{RegistryService: fake}

	b, _ := json.Marshal(models.LoanStatusUpdate{Status: models.LoanApproved, UserID: "officer-1"})
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/loans/l1/status", bytes.NewReader(b)), "id", "l1")
	w := httptest.NewRecorder()

	h.UpdateLoanStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if fake.gotLoanID != "l1" || fake.gotUpdate.UserID != "officer-1" {
		t.Errorf("got id %q update %+v", fake.gotLoanID, fake.gotUpdate)
	}
}

func TestRegistryHandler_RejectsOversizedBody(t *testing.T) {
	fake := &fakeRegistryService{}
	h := &handler.RegistryHandler{RegistryService: fake}

	w := httptest.NewRecorder()
	h.SaveFarmer(w, httptest.NewRequest(http.MethodPost, "/api/farmers", oversizedBody()))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if fake.gotFarmer.ID != "" {
		t.Errorf("service called with id of length %d", len(fake.gotFarmer.ID))
	}
}

func TestRegistryHandler_CheckSchemes(t *testing.T) {
	h := &handler.RegistryHandler{RegistryService: &fakeRegistryService{}}

	w := httptest.NewRecorder()
	h.CheckSchemes(w, httptest.NewRequest(http.MethodPost, "/api/schemes/check",
		bytes.NewBufferString(`{"landSize":1.5,"crop":"Wheat"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		EligibleSchemes []models.Scheme `json:"eligibleSchemes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.EligibleSchemes) != 2 {
		t.Errorf("schemes = %+v; want 2", resp.EligibleSchemes)
	}
}

func TestRegistryHandler_CheckSchemesBadJSON(t *testing.T) {
	h := &handler.RegistryHandler{RegistryService: &fakeRegistryService{}}

	w := httptest.NewRecorder()
	h.CheckSchemes(w, httptest.NewRequest(http.MethodPost, "/api/schemes/check", bytes.NewBufferString("{")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}
