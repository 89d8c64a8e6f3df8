// Package models defines the core data structures shared by the field-agent
// device and the remote application service: loan applications with their
// message threads, drafts, outbox entries and the legacy farmer and loan records.
package models

import "errors"

var (
	// ErrNotFound is returned when an entity with the requested id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change is not allowed by the workflow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation is returned when an entity or request fails validation.
	ErrValidation = errors.New("validation error")
)

// SyncState tracks whether a local write has been acknowledged by the remote service.
type SyncState string

const (
	// Provisional marks a local write that has not been acknowledged yet.
	Provisional SyncState = "provisional"
	// Confirmed marks an entity whose state was acknowledged by, or pulled from, the remote service.
	Confirmed SyncState = "confirmed"
)

// Flag returns the persisted synced flag: 0 for provisional, 1 for confirmed.
func (s SyncState) Flag() int {
	if s == Confirmed {
		return 1
	}
	return 0
}

// SyncStateFromFlag converts a persisted synced flag back into a SyncState.
func SyncStateFromFlag(flag int) SyncState {
	if flag == 1 {
		return Confirmed
	}
	return Provisional
}
