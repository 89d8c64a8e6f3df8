// Package service is the device-side entry point used by the UI: it writes
// optimistically to the local store, queues remote mutations and exposes
// manual sync and lender decisions.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FarmCredit/internal/client/storage"
	"github.com/atinyakov/FarmCredit/internal/client/syncer"
	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/security"
	"github.com/atinyakov/FarmCredit/internal/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store defines the local persistence the service needs.
type Store interface {
	LoadAll(ctx context.Context) (*storage.Snapshot, error)
	SaveDraft(ctx context.Context, d models.Draft) error
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	GetApplication(ctx context.Context, id string) (*models.LocalApplication, error)
	SubmitApplication(ctx context.Context, app models.Application) error
	ApplyRemote(ctx context.Context, app models.Application) (workflow.Outcome, error)
	AddFarmer(ctx context.Context, f models.Farmer) error
	AddLoan(ctx context.Context, l models.Loan) error
	PendingCount(ctx context.Context) (int, error)
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
}

// Remote is the direct, non-queued access to the remote service.
type Remote interface {
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error)
}

// Syncer runs a user-requested sync pass.
type Syncer interface {
	SyncNow(ctx context.Context) (syncer.Report, error)
}

// Service implements the device operations.
type Service struct {
	store   Store
	remote  Remote
	syncer  Syncer
	agentID string
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

// New constructs a Service acting on behalf of agentID.
func New(store Store, rc Remote, s Syncer, agentID string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		remote:  rc,
		syncer:  s,
		agentID: agentID,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// LoadAll returns every collection for display.
func (s *Service) LoadAll(ctx context.Context) (*storage.Snapshot, error) {
	return s.store.LoadAll(ctx)
}

// NewDraft starts an application with fresh identity fields.
func (s *Service) NewDraft() models.Draft {
	now := s.now().UTC()
	return models.Draft{
		Application: models.Application{
			ID:           s.newID(),
			AgentID:      s.agentID,
			SubmissionID: s.newID(),
			Timestamp:    now,
			Status:       models.StatusDraft,
			Messages:     []models.Message{},
		},
		LastModified: now,
		Step:         1,
	}
}

// SaveDraft creates or replaces a draft. Drafts never reach the outbox.
func (s *Service) SaveDraft(ctx context.Context, d models.Draft) (models.Draft, error) {
	if d.ID == "" {
		fresh := s.NewDraft()
		fresh.Step = d.Step
		d.ID, d.SubmissionID, d.Timestamp = fresh.ID, fresh.SubmissionID, fresh.Timestamp
	}
	if d.AgentID == "" {
		d.AgentID = s.agentID
	}
	d.Status = models.StatusDraft
	d.LastModified = s.now().UTC()
	if err := s.store.SaveDraft(ctx, d); err != nil {
		return models.Draft{}, err
	}
	return d, nil
}

// SubmitDraft submits the stored draft with the given id.
func (s *Service) SubmitDraft(ctx context.Context, id string) (*models.Application, error) {
	d, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SubmitApplication(ctx, d.Application)
}

// SubmitApplication moves app out of DRAFT (or INFO_REQUESTED), obfuscates
// its sensitive fields, stores it as provisional and queues the remote
// create-or-replace. The draft with the same id is deleted.
func (s *Service) SubmitApplication(ctx context.Context, app models.Application) (*models.Application, error) {
	app = app.Clone()
	if app.ID == "" {
		app.ID = s.newID()
	}
	if app.SubmissionID == "" {
		app.SubmissionID = s.newID()
	}
	if app.AgentID == "" {
		app.AgentID = s.agentID
	}
	if app.Timestamp.IsZero() {
		app.Timestamp = s.now().UTC()
	}
	if app.Messages == nil {
		app.Messages = []models.Message{}
	}
	if strings.TrimSpace(app.Personal.FarmerName) == "" {
		return nil, fmt.Errorf("%w: farmer name is required", models.ErrValidation)
	}
	if err := workflow.Submit(&app); err != nil {
		return nil, err
	}
	security.SealPersonal(&app.Personal)

	if err := s.store.SubmitApplication(ctx, app); err != nil {
		return nil, err
	}
	s.log.Info("application queued",
		zap.String("id", app.ID), zap.String("status", string(app.Status)))
	return &app, nil
}

// Resubmit re-posts an application the lender sent back with INFO_REQUESTED,
// using the cached copy updated with the agent's changes.
func (s *Service) Resubmit(ctx context.Context, id string, edit func(*models.Application)) (*models.Application, error) {
	la, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if la.Status != models.StatusInfoRequested {
		return nil, fmt.Errorf("%w: application %s is %s, not %s",
			models.ErrInvalidTransition, id, la.Status, models.StatusInfoRequested)
	}
	app := la.Application.Clone()
	security.OpenPersonal(&app.Personal)
	if edit != nil {
		edit(&app)
	}
	return s.SubmitApplication(ctx, app)
}

// AddFarmer registers a farmer locally and queues it for the remote service.
func (s *Service) AddFarmer(ctx context.Context, f models.Farmer) (*models.Farmer, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("%w: farmer name is required", models.ErrValidation)
	}
	if f.LandSize < 0 {
		return nil, fmt.Errorf("%w: land size must not be negative", models.ErrValidation)
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	if err := s.store.AddFarmer(ctx, f); err != nil {
		return nil, err
	}
	f.SyncState = models.Provisional
	return &f, nil
}

// AddLoan records a PENDING loan request for a farmer and queues it.
func (s *Service) AddLoan(ctx context.Context, l models.Loan) (*models.Loan, error) {
	if l.FarmerID == "" {
		return nil, fmt.Errorf("%w: farmer id is required", models.ErrValidation)
	}
	if l.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	now := s.now().UTC()
	if l.ID == "" {
		l.ID = s.newID()
	}
	if l.AgentID == "" {
		l.AgentID = s.agentID
	}
	l.Status = models.LoanPending
	l.UpdatedAt = now
	if len(l.Timeline) == 0 {
		l.Timeline = []models.LoanEvent{{Date: now, Status: string(models.LoanPending), Note: "Loan request created"}}
	}
	if err := s.store.AddLoan(ctx, l); err != nil {
		return nil, err
	}
	l.SyncState = models.Provisional
	return &l, nil
}

// TriggerSync runs a sync pass now. ErrAllFailed means nothing pending could
// be delivered.
func (s *Service) TriggerSync(ctx context.Context) (syncer.Report, error) {
	return s.syncer.SyncNow(ctx)
}

// Decide sends a lender decision or a message straight to the remote service
// and caches the returned authoritative record. It is not queued and not
// retried: a repeated message would be appended twice.
func (s *Service) Decide(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error) {
	if err := workflow.DecisionFrom(upd).Validate(); err != nil {
		return nil, err
	}
	stored, err := s.remote.UpdateStatus(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update application %s: %w", id, err)
	}
	if _, err := s.store.ApplyRemote(ctx, *stored); err != nil {
		// The remote already applied the decision; the next pull repairs the cache.
		s.log.Warn("cache decision failed", zap.String("id", id), zap.Error(err))
	}
	return stored, nil
}

// PendingCount returns the number of queued remote mutations.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.PendingCount(ctx)
}

// Outbox lists queued remote mutations in delivery order.
func (s *Service) Outbox(ctx context.Context) ([]models.OutboxEntry, error) {
	return s.store.ListPending(ctx)
}

// MaskedPersonal returns p with sensitive fields decoded and masked for display.
func MaskedPersonal(p models.Personal) models.Personal {
	security.OpenPersonal(&p)
	p.AadhaarOrID = security.Mask(p.AadhaarOrID, 4)
	p.Phone = security.Mask(p.Phone, 4)
	return p
}
