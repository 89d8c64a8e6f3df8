package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/atinyakov/FarmCredit/internal/client/outbox"
	"github.com/atinyakov/FarmCredit/internal/dbx"
	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/atinyakov/FarmCredit/internal/workflow"
)

// SubmitApplication stores app as provisional, deletes the draft with the
// same id and enqueues the remote create-or-replace, all in one transaction.
// The caller is responsible for moving app.Status out of DRAFT first. A cached
// application with the same id may only be replaced by a resubmission.
func (ls *LocalStorage) SubmitApplication(ctx context.Context, app models.Application) error {
	if app.Status == models.StatusDraft || app.Status == "" {
		return fmt.Errorf("%w: application %s is still a draft", models.ErrInvalidTransition, app.ID)
	}
	err := dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cached, err := getApplication(ctx, tx, app.ID)
		switch {
		case err == nil:
			if err := workflow.Replace(cached.Status, app.Status); err != nil {
				return fmt.Errorf("application %s: %w", app.ID, err)
			}
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
		la := models.LocalApplication{Application: app, SyncState: models.Provisional}
		if err := ls.putApplication(ctx, tx, la); err != nil {
			return err
		}
		if err := deleteDraft(ctx, tx, app.ID); err != nil {
			return err
		}
		_, err = outbox.New(tx).Enqueue(ctx, models.ResourceApplications, http.MethodPost, app.ID, app)
		return err
	})
	if err != nil {
		return ioErr("submit application", err)
	}
	return nil
}

// PutApplication writes la as is, without touching the outbox.
func (ls *LocalStorage) PutApplication(ctx context.Context, la models.LocalApplication) error {
	if err := ls.putApplication(ctx, ls.db, la); err != nil {
		return ioErr("put application", err)
	}
	return nil
}

func (ls *LocalStorage) putApplication(ctx context.Context, db dbx.DBTX, la models.LocalApplication) error {
	if la.Messages == nil {
		la.Messages = []models.Message{}
	}
	data, err := json.Marshal(la.Application)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO applications (id, status, data, synced, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data,
			synced = excluded.synced, updated_at = excluded.updated_at`,
		la.ID, string(la.Status), string(data), la.SyncState.Flag(), ls.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert application %s: %w", la.ID, err)
	}
	return nil
}

// GetApplication returns the cached application or models.ErrNotFound.
func (ls *LocalStorage) GetApplication(ctx context.Context, id string) (*models.LocalApplication, error) {
	la, err := getApplication(ctx, ls.db, id)
	if err != nil {
		return nil, ioErr("get application", err)
	}
	return la, nil
}

func getApplication(ctx context.Context, db dbx.DBTX, id string) (*models.LocalApplication, error) {
	var (
		status string
		data   string
		synced int
	)
	err := db.QueryRowContext(ctx, `SELECT status, data, synced FROM applications WHERE id = ?`, id).
		Scan(&status, &data, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeApplication(status, data, synced)
}

func decodeApplication(status, data string, synced int) (*models.LocalApplication, error) {
	var app models.Application
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		return nil, fmt.Errorf("decode application: %w", err)
	}
	// The status column is authoritative over the embedded payload.
	app.Status = models.Status(status)
	return &models.LocalApplication{Application: app, SyncState: models.SyncStateFromFlag(synced)}, nil
}

// ListApplications returns all cached applications, most recently created first.
func (ls *LocalStorage) ListApplications(ctx context.Context) ([]models.LocalApplication, error) {
	rows, err := ls.db.QueryContext(ctx, `SELECT status, data, synced FROM applications ORDER BY rowid DESC`)
	if err != nil {
		return nil, ioErr("list applications", err)
	}
	defer rows.Close()

	apps := []models.LocalApplication{}
	for rows.Next() {
		var (
			status, data string
			synced       int
		)
		if err := rows.Scan(&status, &data, &synced); err != nil {
			return nil, ioErr("scan application", err)
		}
		la, err := decodeApplication(status, data, synced)
		if err != nil {
			return nil, ioErr("list applications", err)
		}
		apps = append(apps, *la)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list applications", err)
	}
	return apps, nil
}

// DeleteApplication removes a cached application.
func (ls *LocalStorage) DeleteApplication(ctx context.Context, id string) error {
	if _, err := ls.db.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id); err != nil {
		return ioErr("delete application", err)
	}
	return nil
}

// ApplyRemote installs the authoritative copy of an application pulled from
// the remote service, replacing the local copy and superseding a draft with
// the same id once the remote status has left DRAFT.
func (ls *LocalStorage) ApplyRemote(ctx context.Context, remote models.Application) (workflow.Outcome, error) {
	var out workflow.Outcome
	err := dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		local, err := getApplication(ctx, tx, remote.ID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		pending, err := outbox.New(tx).HasPending(ctx, remote.ID)
		if err != nil {
			return err
		}
		var merged models.LocalApplication
		merged, out = workflow.Reconcile(local, remote, pending)
		if err := ls.putApplication(ctx, tx, merged); err != nil {
			return err
		}
		if out.DropDraft {
			return deleteDraft(ctx, tx, remote.ID)
		}
		return nil
	})
	if err != nil {
		return workflow.Outcome{}, ioErr("apply remote application", err)
	}
	return out, nil
}

// SaveDraft creates or replaces a draft. An id that already belongs to a
// submitted application cannot go back to being a draft.
func (ls *LocalStorage) SaveDraft(ctx context.Context, d models.Draft) error {
	if d.Step < 1 {
		d.Step = 1
	}
	if d.LastModified.IsZero() {
		d.LastModified = ls.now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return ioErr("encode draft", err)
	}
	err = dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cached, err := getApplication(ctx, tx, d.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: application %s is already %s", models.ErrInvalidTransition, d.ID, cached.Status)
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO drafts (id, data, step, last_modified) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, step = excluded.step, last_modified = excluded.last_modified`,
			d.ID, string(data), d.Step, d.LastModified.UnixMilli())
		return err
	})
	if err != nil {
		return ioErr("save draft", err)
	}
	return nil
}

// GetDraft returns a draft or models.ErrNotFound.
func (ls *LocalStorage) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	var data string
	err := ls.db.QueryRowContext(ctx, `SELECT data FROM drafts WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, ioErr("get draft", err)
	}
	var d models.Draft
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, ioErr("decode draft", err)
	}
	return &d, nil
}

// ListDrafts returns drafts, most recently modified first.
func (ls *LocalStorage) ListDrafts(ctx context.Context) ([]models.Draft, error) {
	rows, err := ls.db.QueryContext(ctx, `SELECT data FROM drafts ORDER BY last_modified DESC, id`)
	if err != nil {
		return nil, ioErr("list drafts", err)
	}
	defer rows.Close()

	drafts := []models.Draft{}
	for rows.Next() {
		var (
			data string
			d    models.Draft
		)
		if err := rows.Scan(&data); err != nil {
			return nil, ioErr("scan draft", err)
		}
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, ioErr("decode draft", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list drafts", err)
	}
	return drafts, nil
}

// DeleteDraft removes a draft. Deleting an unknown draft is not an error.
func (ls *LocalStorage) DeleteDraft(ctx context.Context, id string) error {
	if err := deleteDraft(ctx, ls.db, id); err != nil {
		return ioErr("delete draft", err)
	}
	return nil
}

func deleteDraft(ctx context.Context, db dbx.DBTX, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}
