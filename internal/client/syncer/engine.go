// Package syncer reconciles the device store with the remote service: it
// drains the outbox in enqueue order and pulls the authoritative application
// list back into the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atinyakov/FarmCredit/internal/client/remote"
	"github.com/atinyakov/FarmCredit/internal/metrics"
	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/workflow"
	"go.uber.org/zap"
)

// ErrAllFailed is returned by SyncNow when the pass attempted outbox entries
// and none of them was delivered.
var ErrAllFailed = errors.New("sync failed: no pending change could be delivered")

// Store is the part of the device store the engine needs.
type Store interface {
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
	Acknowledge(ctx context.Context, entry models.OutboxEntry) error
	ApplyRemote(ctx context.Context, app models.Application) (workflow.Outcome, error)
	PendingCount(ctx context.Context) (int, error)
}

// Remote is the part of the remote service client the engine needs.
type Remote interface {
	Deliver(ctx context.Context, entry models.OutboxEntry) error
	ListApplications(ctx context.Context) ([]models.Application, error)
}

// Connectivity reports whether the remote service is believed reachable.
type Connectivity interface {
	Online() bool
}

// offlineMarker is implemented by connectivity sources the engine may flip
// to offline when a delivery shows the network is gone.
type offlineMarker interface {
	Set(online bool) bool
}

// Report summarises one sync pass.
type Report struct {
	// Offline is set when the pass was a no-op because the device is offline.
	Offline bool
	// Busy is set when another pass was already running.
	Busy bool
	// Delivered and Failed count outbox entries attempted in this pass.
	Delivered int
	Failed    int
	// Skipped counts entries held back behind an earlier failure.
	Skipped int
	// Pending is the outbox depth after the pass.
	Pending int
	// Pulled is the number of remote applications merged into the store.
	Pulled int
	// PullFailed is set when the inbound pull could not complete.
	PullFailed bool
	// Updated lists applications whose status changed or gained messages.
	Updated []string
}

// AllFailed reports whether entries were attempted and none was delivered.
func (r Report) AllFailed() bool {
	return r.Delivered == 0 && r.Failed > 0
}

// Engine runs sync passes. At most one pass runs at a time.
type Engine struct {
	store  Store
	remote Remote
	conn   Connectivity
	log    *zap.Logger
	now    func() time.Time

	running atomic.Bool
}

// NewEngine wires an engine.
func NewEngine(store Store, rc Remote, conn Connectivity, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, remote: rc, conn: conn, log: log, now: time.Now}
}

// Sync runs one pass. Per-entry delivery failures are logged and reported,
// never returned; the error is reserved for local store failures.
func (e *Engine) Sync(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.RecordSyncPass("busy", 0)
		return Report{Busy: true}, nil
	}
	defer e.running.Store(false)

	if !e.conn.Online() {
		e.log.Debug("device offline, sync pass skipped")
		metrics.RecordSyncPass("offline", 0)
		return Report{Offline: true}, nil
	}

	start := e.now()
	var rep Report
	reachable, err := e.drain(ctx, &rep)
	if err != nil {
		metrics.RecordSyncPass("failed", e.now().Sub(start))
		return rep, err
	}
	if reachable {
		if err := e.pull(ctx, &rep); err != nil {
			metrics.RecordSyncPass("failed", e.now().Sub(start))
			return rep, err
		}
	}

	if n, err := e.store.PendingCount(ctx); err == nil {
		rep.Pending = n
		metrics.SetPending(n)
	}

	result := "ok"
	switch {
	case rep.AllFailed():
		result = "failed"
	case rep.Failed > 0 || rep.Skipped > 0 || rep.PullFailed:
		result = "partial"
	}
	metrics.RecordSyncPass(result, e.now().Sub(start))
	e.log.Info("sync pass finished",
		zap.String("result", result),
		zap.Int("delivered", rep.Delivered),
		zap.Int("failed", rep.Failed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("pulled", rep.Pulled),
		zap.Int("pending", rep.Pending),
	)
	return rep, nil
}

// SyncNow runs a user-requested pass and reports total delivery failure as
// ErrAllFailed so the caller can show one summary notice.
func (e *Engine) SyncNow(ctx context.Context) (Report, error) {
	rep, err := e.Sync(ctx)
	if err != nil {
		return rep, err
	}
	if rep.AllFailed() {
		return rep, fmt.Errorf("%w (%d pending)", ErrAllFailed, rep.Failed+rep.Skipped)
	}
	return rep, nil
}

// Running reports whether a pass is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// drain delivers the outbox snapshot taken at pass start, oldest first. A
// failed entry holds back later entries for the same entity so that one
// entity's mutations are never applied out of order; other entities proceed.
// It reports false when the network turned out to be unreachable or ctx ended
// the pass early.
func (e *Engine) drain(ctx context.Context, rep *Report) (bool, error) {
	entries, err := e.store.ListPending(ctx)
	if err != nil {
		return false, err
	}

	blocked := make(map[string]bool)
	for i, entry := range entries {
		if entry.EntityID != "" && blocked[entry.EntityID] {
			rep.Skipped++
			continue
		}

		err := e.remote.Deliver(ctx, entry)
		if err != nil {
			metrics.RecordDelivery(entry.Resource, false)
			if ctx.Err() != nil {
				rep.Failed++
				rep.Skipped += len(entries) - i - 1
				return false, nil
			}
			if errors.Is(err, remote.ErrUnavailable) {
				rep.Failed++
				rep.Skipped += len(entries) - i - 1
				e.log.Warn("remote unreachable, sync pass stopped",
					zap.Int64("entry", entry.ID), zap.Error(err))
				if m, ok := e.conn.(offlineMarker); ok {
					m.Set(false)
				}
				return false, nil
			}
			// Rejections and per-request failures only hold back this entity.
			rep.Failed++
			if entry.EntityID != "" {
				blocked[entry.EntityID] = true
			}
			e.log.Warn("outbox entry not delivered, kept for retry",
				zap.Int64("entry", entry.ID),
				zap.String("method", entry.Method),
				zap.String("resource", entry.Resource),
				zap.String("entity", entry.EntityID),
				zap.Error(err))
			continue
		}

		metrics.RecordDelivery(entry.Resource, true)
		if err := e.store.Acknowledge(ctx, entry); err != nil {
			// The remote already applied it; a redelivery is an idempotent upsert.
			return true, fmt.Errorf("acknowledge entry %d: %w", entry.ID, err)
		}
		rep.Delivered++
	}
	return true, nil
}

// pull installs the remote application list into the store, remote wins.
func (e *Engine) pull(ctx context.Context, rep *Report) error {
	apps, err := e.remote.ListApplications(ctx)
	if err != nil {
		rep.PullFailed = true
		e.log.Warn("pull applications failed", zap.Error(err))
		return nil
	}
	for _, app := range apps {
		if app.ID == "" {
			continue
		}
		out, err := e.store.ApplyRemote(ctx, app)
		if err != nil {
			return fmt.Errorf("apply remote application %s: %w", app.ID, err)
		}
		rep.Pulled++
		if !out.Created && (out.StatusChanged || out.NewMessages > 0) {
			rep.Updated = append(rep.Updated, app.ID)
			e.log.Info("application updated by remote",
				zap.String("id", app.ID),
				zap.String("status", string(app.Status)),
				zap.Int("new_messages", out.NewMessages))
		}
	}
	return nil
}
