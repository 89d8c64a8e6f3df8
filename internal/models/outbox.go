package models

import (
	"encoding/json"
	"time"
)

// Resource paths on the remote service that the device writes to.
const (
	ResourceFarmers      = "/api/farmers"
	ResourceLoans        = "/api/loans"
	ResourceApplications = "/api/loan-applications"
)

// OutboxEntry is a pending remote mutation. Entries are never modified after
// creation; they are removed once the remote service acknowledges them.
type OutboxEntry struct {
	ID       int64           `json:"id"`
	Resource string          `json:"resource"`
	Method   string          `json:"method"`
	EntityID string          `json:"entityId,omitempty"`
	Body     json.RawMessage `json:"body"`
	// CreatedAt is the enqueue time.
	CreatedAt time.Time `json:"createdAt"`
}
