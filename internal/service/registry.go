package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/google/uuid"
)

// RegistryRepository defines the persistence of farmers and loans.
type RegistryRepository interface {
	ListFarmers(ctx context.Context) ([]models.Farmer, error)
	UpsertFarmer(ctx context.Context, f models.Farmer) error
	ListLoans(ctx context.Context, farmerID string) ([]models.Loan, error)
	UpsertLoan(ctx context.Context, l models.Loan) error
	ModifyLoan(ctx context.Context, id string, fn func(l *models.Loan) error) (*models.Loan, error)
}

// RegistryService manages farmers and their simple loan requests.
type RegistryService struct {
	repo RegistryRepository
	now  func() time.Time
}

// NewRegistryService constructs a RegistryService on repo.
func NewRegistryService(repo RegistryRepository) *RegistryService {
	return &RegistryService{repo: repo, now: time.Now}
}

// ListFarmers returns all farmers.
func (s *RegistryService) ListFarmers(ctx context.Context) ([]models.Farmer, error) {
	return s.repo.ListFarmers(ctx)
}

// SaveFarmer creates or replaces a farmer.
func (s *RegistryService) SaveFarmer(ctx context.Context, f models.Farmer) (*models.Farmer, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("%w: farmer name is required", models.ErrValidation)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	if err := s.repo.UpsertFarmer(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListLoans returns loans, optionally of one farmer.
func (s *RegistryService) ListLoans(ctx context.Context, farmerID string) ([]models.Loan, error) {
	return s.repo.ListLoans(ctx, farmerID)
}

// SaveLoan creates or replaces a loan request.
func (s *RegistryService) SaveLoan(ctx context.Context, l models.Loan) (*models.Loan, error) {
	if l.FarmerID == "" {
		return nil, fmt.Errorf("%w: farmer id is required", models.ErrValidation)
	}
	if l.Status == "" {
		l.Status = models.LoanPending
	}
	if !l.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", models.ErrValidation, l.Status)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = s.now().UTC()
	}
	if l.Timeline == nil {
		l.Timeline = []models.LoanEvent{}
	}
	if err := s.repo.UpsertLoan(ctx, l); err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLoanStatus records a lender action on a loan and appends it to the
// loan timeline.
func (s *RegistryService) UpdateLoanStatus(ctx context.Context, id string, upd models.LoanStatusUpdate) (*models.Loan, error) {
	if !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", models.ErrValidation, upd.Status)
	}
	note := strings.TrimSpace(upd.Note)
	if note == "" {
		user := upd.UserID
		if user == "" {
			user = "user"
		}
		note = fmt.Sprintf("Status updated to %s by %s", upd.Status, user)
	}
	now := s.now().UTC()
	return s.repo.ModifyLoan(ctx, id, func(l *models.Loan) error {
		l.Status = upd.Status
		l.Timeline = append(l.Timeline, models.LoanEvent{Date: now, Status: string(upd.Status), Note: note})
		l.UpdatedAt = now
		return nil
	})
}
