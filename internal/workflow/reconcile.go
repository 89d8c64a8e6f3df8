package workflow

import "github.com/atinyakov/FarmCredit/internal/models"

// Outcome describes what reconciling a remote application did to local state.
type Outcome struct {
	// Created is true when no local copy existed.
	Created bool
	// StatusChanged is true when the local status differed from the remote one.
	StatusChanged bool
	// NewMessages is the number of remote messages the local copy did not have.
	NewMessages int
	// DropDraft is true when a local draft with the same id must be deleted.
	DropDraft bool
}

// Reconcile merges an authoritative remote application into the local copy.
// The remote record wins: status, messages and all payload sections are taken
// from remote as a whole, never field by field. Only the identity fields the
// device assigned at creation (id, timestamp) are kept when the remote record
// omits them. pending reports whether the device still has undelivered
// mutations for the application; if so the result stays provisional.
func Reconcile(local *models.LocalApplication, remote models.Application, pending bool) (models.LocalApplication, Outcome) {
	merged := remote.Clone()
	if merged.Messages == nil {
		merged.Messages = []models.Message{}
	}
	var out Outcome
	if local == nil {
		out.Created = true
	} else {
		if merged.ID == "" {
			merged.ID = local.ID
		}
		if merged.Timestamp.IsZero() {
			merged.Timestamp = local.Timestamp
		}
		out.StatusChanged = local.Status != merged.Status
		if n := len(merged.Messages) - len(local.Messages); n > 0 {
			out.NewMessages = n
		}
	}
	if out.Created {
		out.NewMessages = len(merged.Messages)
	}
	out.DropDraft = merged.Status != models.StatusDraft

	state := models.Confirmed
	if pending {
		state = models.Provisional
	}
	return models.LocalApplication{Application: merged, SyncState: state}, out
}

// NeedsAttention reports whether the agent should look at app: the lender
// requested information, or a decided application carries messages.
func NeedsAttention(app models.Application) bool {
	if app.Status == models.StatusInfoRequested {
		return true
	}
	return Terminal(app.Status) && len(app.Messages) > 0
}
