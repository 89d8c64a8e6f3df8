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
)

// AddFarmer stores f as provisional and enqueues its creation on the remote
// service in the same transaction.
func (ls *LocalStorage) AddFarmer(ctx context.Context, f models.Farmer) error {
	err := dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		f.SyncState = models.Provisional
		if err := ls.putFarmer(ctx, tx, f); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.ResourceFarmers, http.MethodPost, f.ID, f)
		return err
	})
	if err != nil {
		return ioErr("add farmer", err)
	}
	return nil
}

// PutFarmer writes f with its current sync state and no outbox entry.
func (ls *LocalStorage) PutFarmer(ctx context.Context, f models.Farmer) error {
	if err := ls.putFarmer(ctx, ls.db, f); err != nil {
		return ioErr("put farmer", err)
	}
	return nil
}

func (ls *LocalStorage) putFarmer(ctx context.Context, db dbx.DBTX, f models.Farmer) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode farmer: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO farmers (id, data, synced, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, synced = excluded.synced, updated_at = excluded.updated_at`,
		f.ID, string(data), f.SyncState.Flag(), ls.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert farmer %s: %w", f.ID, err)
	}
	return nil
}

// GetFarmer returns the farmer with the given id or models.ErrNotFound.
func (ls *LocalStorage) GetFarmer(ctx context.Context, id string) (*models.Farmer, error) {
	var (
		data   string
		synced int
	)
	err := ls.db.QueryRowContext(ctx, `SELECT data, synced FROM farmers WHERE id = ?`, id).Scan(&data, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("farmer %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, ioErr("get farmer", err)
	}
	var f models.Farmer
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, ioErr("decode farmer", err)
	}
	f.SyncState = models.SyncStateFromFlag(synced)
	return &f, nil
}

// ListFarmers returns all farmers in creation order.
func (ls *LocalStorage) ListFarmers(ctx context.Context) ([]models.Farmer, error) {
	rows, err := ls.db.QueryContext(ctx, `SELECT data, synced FROM farmers ORDER BY rowid`)
	if err != nil {
		return nil, ioErr("list farmers", err)
	}
	defer rows.Close()

	farmers := []models.Farmer{}
	for rows.Next() {
		var (
			data   string
			synced int
			f      models.Farmer
		)
		if err := rows.Scan(&data, &synced); err != nil {
			return nil, ioErr("scan farmer", err)
		}
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, ioErr("decode farmer", err)
		}
		f.SyncState = models.SyncStateFromFlag(synced)
		farmers = append(farmers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list farmers", err)
	}
	return farmers, nil
}

// DeleteFarmer removes a farmer locally.
func (ls *LocalStorage) DeleteFarmer(ctx context.Context, id string) error {
	if _, err := ls.db.ExecContext(ctx, `DELETE FROM farmers WHERE id = ?`, id); err != nil {
		return ioErr("delete farmer", err)
	}
	return nil
}

// AddLoan stores l as provisional and enqueues its creation on the remote
// service in the same transaction.
func (ls *LocalStorage) AddLoan(ctx context.Context, l models.Loan) error {
	err := dbx.WithTx(ctx, ls.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		l.SyncState = models.Provisional
		if err := ls.putLoan(ctx, tx, l); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.ResourceLoans, http.MethodPost, l.ID, l)
		return err
	})
	if err != nil {
		return ioErr("add loan", err)
	}
	return nil
}

func (ls *LocalStorage) putLoan(ctx context.Context, db dbx.DBTX, l models.Loan) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode loan: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO loans (id, farmer_id, data, synced, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET farmer_id = excluded.farmer_id, data = excluded.data,
			synced = excluded.synced, updated_at = excluded.updated_at`,
		l.ID, l.FarmerID, string(data), l.SyncState.Flag(), ls.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert loan %s: %w", l.ID, err)
	}
	return nil
}

// ListLoans returns all loans in creation order.
func (ls *LocalStorage) ListLoans(ctx context.Context) ([]models.Loan, error) {
	return ls.queryLoans(ctx, `SELECT data, synced FROM loans ORDER BY rowid`)
}

// LoansByFarmer returns the loans of one farmer.
func (ls *LocalStorage) LoansByFarmer(ctx context.Context, farmerID string) ([]models.Loan, error) {
	return ls.queryLoans(ctx, `SELECT data, synced FROM loans WHERE farmer_id = ? ORDER BY rowid`, farmerID)
}

func (ls *LocalStorage) queryLoans(ctx context.Context, query string, args ...any) ([]models.Loan, error) {
	rows, err := ls.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ioErr("list loans", err)
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		var (
			data   string
			synced int
			l      models.Loan
		)
		if err := rows.Scan(&data, &synced); err != nil {
			return nil, ioErr("scan loan", err)
		}
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			return nil, ioErr("decode loan", err)
		}
		l.SyncState = models.SyncStateFromFlag(synced)
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list loans", err)
	}
	return loans, nil
}
