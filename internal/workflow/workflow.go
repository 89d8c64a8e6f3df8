// Package workflow implements the loan application state machine. It is pure
// logic: the device applies it to optimistic local writes and the remote
// service applies it to the authoritative store.
//
// Status moves DRAFT -> SUBMITTED -> {APPROVED, REJECTED, INFO_REQUESTED};
// INFO_REQUESTED -> RESUBMITTED -> {APPROVED, REJECTED, INFO_REQUESTED}.
// APPROVED and REJECTED accept no further status change but remain open for
// messages.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FarmCredit/internal/models"
)

var transitions = map[models.Status][]models.Status{
	models.StatusDraft:         {models.StatusSubmitted},
	models.StatusSubmitted:     {models.StatusApproved, models.StatusRejected, models.StatusInfoRequested},
	models.StatusSynced:        {models.StatusApproved, models.StatusRejected, models.StatusInfoRequested},
	models.StatusInfoRequested: {models.StatusResubmitted},
	models.StatusResubmitted:   {models.StatusApproved, models.StatusRejected, models.StatusInfoRequested},
}

// decisions are the statuses a lender may set through a status update.
var decisions = map[models.Status]bool{
	models.StatusApproved:      true,
	models.StatusRejected:      true,
	models.StatusInfoRequested: true,
}

// CanTransition reports whether an application may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status transition is possible from s.
func Terminal(s models.Status) bool {
	return s == models.StatusApproved || s == models.StatusRejected
}

// Decision is a status change and/or message appended by one party.
type Decision struct {
	Status  models.Status
	Message string
	Role    models.Role
}

// DecisionFrom builds a Decision from a status update request body.
func DecisionFrom(u models.StatusUpdate) Decision {
	return Decision{Status: u.Status, Message: u.Message, Role: u.Role}
}

// Validate checks the decision without looking at the application it targets.
func (d Decision) Validate() error {
	if !d.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", models.ErrValidation, d.Role)
	}
	if d.Status == "" && strings.TrimSpace(d.Message) == "" {
		return fmt.Errorf("%w: status or message is required", models.ErrValidation)
	}
	if d.Status != "" {
		if !d.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", models.ErrValidation, d.Status)
		}
		if !decisions[d.Status] {
			return fmt.Errorf("%w: %s cannot be set by a status update", models.ErrInvalidTransition, d.Status)
		}
		if d.Role != models.RoleLender {
			return fmt.Errorf("%w: only a lender can set %s", models.ErrInvalidTransition, d.Status)
		}
	}
	return nil
}

// Clock supplies timestamps and identifiers for appended messages.
type Clock struct {
	Now   func() time.Time
	NewID func() string
}

// Apply applies d to app in place. The status change (if any) is checked
// against the transition table; re-applying the current status is a no-op.
// A non-empty message is appended exactly once, after any existing messages.
// On error app is left unchanged.
func Apply(app *models.Application, d Decision, c Clock) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Status != "" && !CanTransition(app.Status, d.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, app.Status, d.Status)
	}
	if app.Status == models.StatusDraft {
		return fmt.Errorf("%w: application %s has not been submitted", models.ErrInvalidTransition, app.ID)
	}

	if d.Status != "" {
		app.Status = d.Status
	}
	if text := strings.TrimSpace(d.Message); text != "" {
		app.Messages = append(app.Messages, models.Message{
			ID:        c.NewID(),
			Sender:    d.Role.SenderName(),
			Role:      d.Role,
			Text:      text,
			Timestamp: c.Now().UTC(),
		})
	}
	return nil
}

// Submit moves a draft application to SUBMITTED, or an INFO_REQUESTED
// application to RESUBMITTED, on the originating device. The result is
// provisional until the remote service reconciles it.
func Submit(app *models.Application) error {
	switch app.Status {
	case "", models.StatusDraft:
		app.Status = models.StatusSubmitted
	case models.StatusInfoRequested:
		app.Status = models.StatusResubmitted
	default:
		return fmt.Errorf("%w: cannot submit application in status %s", models.ErrInvalidTransition, app.Status)
	}
	return nil
}

// Replace checks that a locally submitted application with status next may
// overwrite a cached copy in status cached. Only an INFO_REQUESTED application
// may be replaced, and only by its RESUBMITTED copy.
func Replace(cached, next models.Status) error {
	if cached == models.StatusInfoRequested && next == models.StatusResubmitted {
		return nil
	}
	return fmt.Errorf("%w: cannot replace application in status %s with %s", models.ErrInvalidTransition, cached, next)
}

// UpsertStatus resolves the status the authoritative store records when an
// application is created or replaced. It depends only on the stored status,
// never on what the client sent: a new application is SUBMITTED, a re-post
// of an INFO_REQUESTED application is RESUBMITTED, anything else keeps its
// stored status.
func UpsertStatus(existing *models.Application) models.Status {
	if existing == nil {
		return models.StatusSubmitted
	}
	if existing.Status == models.StatusInfoRequested {
		return models.StatusResubmitted
	}
	return existing.Status
}
