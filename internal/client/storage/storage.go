// Package storage is the device-local durable store. It keeps farmers, loans,
// submitted applications, drafts and the outbox in a single SQLite database,
// so that an entity write and the outbox entry describing it commit together.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/FarmCredit/internal/client/outbox"
	"github.com/atinyakov/FarmCredit/internal/client/storage/migrations"
	"github.com/atinyakov/FarmCredit/internal/dbx"
	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// ErrStoreIO wraps every failure of the underlying database. Callers must
// report the triggering action as failed rather than assume it was queued.
var ErrStoreIO = errors.New("local store failure")

// Collection names an entity collection that carries a synced flag.
type Collection string

const (
	Farmers      Collection = "farmers"
	Loans        Collection = "loans"
	Applications Collection = "applications"
)

// CollectionFor maps an outbox resource path to the collection whose synced
// flag an acknowledgement of that resource confirms.
func CollectionFor(resource string) (Collection, bool) {
	switch resource {
	case models.ResourceFarmers:
		return Farmers, true
	case models.ResourceLoans:
		return Loans, true
	case models.ResourceApplications:
		return Applications, true
	}
	return "", false
}

// LocalStorage is the device-local durable store.
type LocalStorage struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*LocalStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ioErr("open database", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// RunMigrations applies the embedded schema migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return ioErr("init migrations", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return ioErr("apply migrations", err)
	}
	return nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *LocalStorage {
	return &LocalStorage{db: db, now: time.Now}
}

// Close closes the underlying database.
func (ls *LocalStorage) Close() error {
	return ls.db.Close()
}

// Outbox returns the outbox queue bound to the store's database.
func (ls *LocalStorage) Outbox() *outbox.Queue {
	return outbox.New(ls.db)
}

// Snapshot is everything the UI needs to render its lists.
type Snapshot struct {
	Farmers      []models.Farmer
	Loans        []models.Loan
	Applications []models.LocalApplication
	Drafts       []models.Draft
}

// LoadAll reads every collection.
func (ls *LocalStorage) LoadAll(ctx context.Context) (*Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Farmers, err = ls.ListFarmers(ctx); err != nil {
		return nil, err
	}
	if snap.Loans, err = ls.ListLoans(ctx); err != nil {
		return nil, err
	}
	if snap.Applications, err = ls.ListApplications(ctx); err != nil {
		return nil, err
	}
	if snap.Drafts, err = ls.ListDrafts(ctx); err != nil {
		return nil, err
	}
	return &snap, nil
}

// UnsyncedIDs returns the ids of provisional entities in c.
func (ls *LocalStorage) UnsyncedIDs(ctx context.Context, c Collection) ([]string, error) {
	rows, err := ls.db.QueryContext(ctx, `SELECT id FROM `+string(c)+` WHERE synced = 0 ORDER BY updated_at`)
	if err != nil {
		return nil, ioErr("list unsynced "+string(c), err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ioErr("scan unsynced "+string(c), err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list unsynced "+string(c), err)
	}
	return ids, nil
}

// MarkSynced sets the synced flag of an entity. Unknown ids are ignored.
func (ls *LocalStorage) MarkSynced(ctx context.Context, c Collection, id string) error {
	return markSynced(ctx, ls.db, c, id, ls.now())
}

// Acknowledge records a successful delivery: the outbox entry is removed and,
// when no other mutation of the same entity is still pending, the entity is
// marked confirmed. Both happen in one transaction.
func (ls *LocalStorage) Acknowledge(ctx context.Context, entry models.OutboxEntry) error {
	err := dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		q := outbox.New(tx)
		if err := q.Remove(ctx, entry.ID); err != nil {
			return err
		}
		c, ok := CollectionFor(entry.Resource)
		if !ok || entry.EntityID == "" {
			return nil
		}
		pending, err := q.HasPending(ctx, entry.EntityID)
		if err != nil || pending {
			return err
		}
		return markSynced(ctx, tx, c, entry.EntityID, ls.now())
	})
	if err != nil {
		return ioErr("acknowledge outbox entry", err)
	}
	return nil
}

// PendingCount returns the number of outbox entries awaiting delivery.
func (ls *LocalStorage) PendingCount(ctx context.Context) (int, error) {
	n, err := ls.Outbox().Len(ctx)
	if err != nil {
		return 0, ioErr("count outbox", err)
	}
	return n, nil
}

// ListPending returns the outbox in enqueue order.
func (ls *LocalStorage) ListPending(ctx context.Context) ([]models.OutboxEntry, error) {
	entries, err := ls.Outbox().ListPending(ctx)
	if err != nil {
		return nil, ioErr("list outbox", err)
	}
	return entries, nil
}

func markSynced(ctx context.Context, db dbx.DBTX, c Collection, id string, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE `+string(c)+` SET synced = 1, updated_at = ? WHERE id = ?`, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark %s %s synced: %w", c, id, err)
	}
	return nil
}

func ioErr(op string, err error) error {
	if errors.Is(err, ErrStoreIO) || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidTransition) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreIO, op, err)
}
