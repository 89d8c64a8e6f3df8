package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRegistryRepo struct {
	ListFarmersFunc  func(ctx context.Context) ([]models.Farmer, error)
	UpsertFarmerFunc func(ctx context.Context, f models.Farmer) error
	ListLoansFunc    func(ctx context.Context, farmerID string) ([]models.Loan, error)
	UpsertLoanFunc   func(ctx context.Context, l models.Loan) error
	ModifyLoanFunc   func(ctx context.Context, id string, fn func(l *models.Loan) error) (*models.Loan, error)
}

func (m *mockRegistryRepo) ListFarmers(ctx context.Context) ([]models.Farmer, error) {
	return m.ListFarmersFunc(ctx)
}
func (m *mockRegistryRepo) UpsertFarmer(ctx context.Context, f models.Farmer) error {
	return m.UpsertFarmerFunc(ctx, f)
}
func (m *mockRegistryRepo) ListLoans(ctx context.Context, farmerID string) ([]models.Loan, error) {
	return m.ListLoansFunc(ctx, farmerID)
}
func (m *mockRegistryRepo) UpsertLoan(ctx context.Context, l models.Loan) error {
	return m.UpsertLoanFunc(ctx, l)
}
func (m *mockRegistryRepo) ModifyLoan(ctx context.Context, id string, fn func(l *models.Loan) error) (*models.Loan, error) {
	return m.ModifyLoanFunc(ctx, id, fn)
}

func TestSaveFarmer(t *testing.T) {
	var saved models.Farmer
	repo := &mockRegistryRepo{UpsertFarmerFunc: func(_ context.Context, f models.Farmer) error {
		saved = f
		return nil
	}}
	svc := service.NewRegistryService(repo)

	_, err := svc.SaveFarmer(context.Background(), models.Farmer{Name: "  "})
	require.ErrorIs(t, err, models.ErrValidation)

	f, err := svc.SaveFarmer(context.Background(), models.Farmer{Name: "Abdul Khan", LandSize: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, f.ID, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestSaveLoan_DefaultsToPending(t *testing.T) {
	repo := &mockRegistryRepo{UpsertLoanFunc: func(context.Context, models.Loan) error { return nil }}
	svc := service.NewRegistryService(repo)

	l, err := svc.SaveLoan(context.Background(), models.Loan{FarmerID: "f1", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, l.Status)
	assert.NotNil(t, l.Timeline)

	_, err = svc.SaveLoan(context.Background(), models.Loan{FarmerID: "f1", Status: "MAYBE"})
	require.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.SaveLoan(context.Background(), models.Loan{})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateLoanStatus_AppendsTimeline(t *testing.T) {
	stored := &models.Loan{ID: "l1", Status: models.LoanPending, Timeline: []models.LoanEvent{{Status: "PENDING"}}}
	repo := &mockRegistryRepo{ModifyLoanFunc: func(_ context.Context, id string, fn func(*models.Loan) error) (*models.Loan, error) {
		if id != "l1" {
			return nil, models.ErrNotFound
		}
		if err := fn(stored); err != nil {
			return nil, err
		}
		return stored, nil
	}}
	svc := service.NewRegistryService(repo)

	l, err := svc.UpdateLoanStatus(context.Background(), "l1", models.LoanStatusUpdate{Status: models.LoanApproved, UserID: "lender-7"})
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)
	require.Len(t, l.Timeline, 2)
	assert.Equal(t, "Status updated to APPROVED by lender-7", l.Timeline[1].Note)

	l, err = svc.UpdateLoanStatus(context.Background(), "l1", models.LoanStatusUpdate{Status: models.LoanRejected, Note: "Documents missing"})
	require.NoError(t, err)
	assert.Equal(t, "Documents missing", l.Timeline[2].Note)

	_, err = svc.UpdateLoanStatus(context.Background(), "nope", models.LoanStatusUpdate{Status: models.LoanApproved})
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.UpdateLoanStatus(context.Background(), "l1", models.LoanStatusUpdate{Status: "DONE"})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestListFarmers_Error(t *testing.T) {
	wantErr := errors.New("db down")
	repo := &mockRegistryRepo{ListFarmersFunc: func(context.Context) ([]models.Farmer, error) { return nil, wantErr }}
	_, err := service.NewRegistryService(repo).ListFarmers(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestCheckSchemes(t *testing.T) {
	cases := []struct {
		q    service.SchemeQuery
		want []string
	}{
		{service.SchemeQuery{LandSize: 1.2, Crop: "Wheat"}, []string{"PM-KISAN", "Crop Insurance Subsidy"}},
		{service.SchemeQuery{LandSize: 2, Crop: "Rice"}, []string{"Crop Insurance Subsidy"}},
		{service.SchemeQuery{LandSize: 0.5, Crop: "Cotton"}, []string{"PM-KISAN"}},
		{service.SchemeQuery{LandSize: 5, Crop: "wheat"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.q.Crop, func(t *testing.T) {
			got := []string{}
			for _, s := range service.CheckSchemes(tc.q) {
				got = append(got, s.Name)
			}
			assert.Equal(t, tc.want, got)
		})
	}
	assert.True(t, strings.Contains(service.CheckSchemes(service.SchemeQuery{LandSize: 1})[0].Benefit, "6000"))
}
