// Package service provides the business logic of the remote application
// service, delegating persistence to repository interfaces.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/repository"
	"github.com/atinyakov/FarmCredit/internal/workflow"
	"github.com/google/uuid"
)

// ApplicationRepository defines the persistence operations needed by the ApplicationService.
type ApplicationRepository interface {
	// ListApplications returns applications, optionally filtered by status.
	ListApplications(ctx context.Context, status models.Status) ([]models.Application, error)
	// GetApplication returns one application or models.ErrNotFound.
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// ModifyApplication runs fn under the row lock of id and stores its non-nil result.
	ModifyApplication(ctx context.Context, id string, fn func(existing *models.Application) (*models.Application, error)) (*models.Application, error)
	// StatusTotals aggregates applications by status.
	StatusTotals(ctx context.Context) (map[models.Status]repository.StatusTotal, error)
}

// ApplicationService is the authoritative store of loan applications.
type ApplicationService struct {
	repo  ApplicationRepository
	clock workflow.Clock
}

// NewApplicationService constructs an ApplicationService on repo.
func NewApplicationService(repo ApplicationRepository) *ApplicationService {
	return &ApplicationService{
		repo: repo,
		clock: workflow.Clock{
			Now:   time.Now,
			NewID: uuid.NewString,
		},
	}
}

// List returns applications, optionally only those in status.
func (s *ApplicationService) List(ctx context.Context, status models.Status) ([]models.Application, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}
	return s.repo.ListApplications(ctx, status)
}

// Get returns one application.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.Application, error) {
	return s.repo.GetApplication(ctx, id)
}

// CreateOrReplace upserts app by id. The stored status is decided from the
// existing record only: new applications become SUBMITTED, a re-post of an
// INFO_REQUESTED application becomes RESUBMITTED and any other status is
// kept. The stored message thread and creation time are never replaced, and
// an application that was already approved or rejected is left unchanged.
func (s *ApplicationService) CreateOrReplace(ctx context.Context, app models.Application) (*models.Application, error) {
	if strings.TrimSpace(app.ID) == "" {
		return nil, fmt.Errorf("%w: application id is required", models.ErrValidation)
	}
	return s.repo.ModifyApplication(ctx, app.ID, func(existing *models.Application) (*models.Application, error) {
		if existing != nil && workflow.Terminal(existing.Status) {
			return nil, nil
		}
		next := app.Clone()
		next.Status = workflow.UpsertStatus(existing)
		if existing != nil {
			next.Messages = existing.Messages
			if !existing.Timestamp.IsZero() {
				next.Timestamp = existing.Timestamp
			}
		} else {
			next.Messages = []models.Message{}
			if next.Timestamp.IsZero() {
				next.Timestamp = s.clock.Now().UTC()
			}
		}
		if next.Messages == nil {
			next.Messages = []models.Message{}
		}
		return &next, nil
	})
}

// UpdateStatus applies a lender decision and/or appends a message to the
// application id, atomically. Re-applying the current status without a
// message changes nothing.
func (s *ApplicationService) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error) {
	d := workflow.DecisionFrom(upd)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ModifyApplication(ctx, id, func(existing *models.Application) (*models.Application, error) {
		if existing == nil {
			return nil, fmt.Errorf("application %s: %w", id, models.ErrNotFound)
		}
		next := existing.Clone()
		if err := workflow.Apply(&next, d, s.clock); err != nil {
			return nil, err
		}
		if next.Status == existing.Status && len(next.Messages) == len(existing.Messages) {
			return nil, nil
		}
		return &next, nil
	})
}

// Stats summarises the store for the lender dashboard.
func (s *ApplicationService) Stats(ctx context.Context) (*models.ApplicationStats, error) {
	totals, err := s.repo.StatusTotals(ctx)
	if err != nil {
		return nil, err
	}
	var st models.ApplicationStats
	for status, t := range totals {
		st.Total += t.Count
		switch status {
		case models.StatusApproved:
			st.Approved += t.Count
			st.ApprovedAmount += t.Amount
		case models.StatusRejected:
			st.Rejected += t.Count
		case models.StatusSubmitted, models.StatusResubmitted:
			st.Pending += t.Count
		case models.StatusInfoRequested:
			st.InfoRequested += t.Count
		}
	}
	return &st, nil
}
