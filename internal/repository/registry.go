package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/atinyakov/FarmCredit/internal/dbx"
	"github.com/atinyakov/FarmCredit/internal/models"
)

// PostgresRegistryRepository stores farmers and their simple loan requests.
type PostgresRegistryRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresRegistryRepository creates a repository on db.
func NewPostgresRegistryRepository(db *sql.DB) *PostgresRegistryRepository {
	return &PostgresRegistryRepository{DB: db}
}

// ListFarmers returns all farmers in creation order.
func (r *PostgresRegistryRepository) ListFarmers(ctx context.Context) ([]models.Farmer, error) {
	query, args, err := psql.
		Select("id", "name", "village", "phone", "land_size", "created_at").
		From("farmers").
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListFarmers: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListFarmers: %w", err)
	}
	defer rows.Close()

	farmers := []models.Farmer{}
	for rows.Next() {
		var f models.Farmer
		if err := rows.Scan(&f.ID, &f.Name, &f.Village, &f.Phone, &f.LandSize, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		farmers = append(farmers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListFarmers: %w", err)
	}
	return farmers, nil
}

// UpsertFarmer inserts f or replaces the farmer with the same id.
func (r *PostgresRegistryRepository) UpsertFarmer(ctx context.Context, f models.Farmer) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	query, args, err := psql.
		Insert("farmers").
		Columns("id", "name", "village", "phone", "land_size", "created_at").
		Values(f.ID, f.Name, f.Village, f.Phone, f.LandSize, f.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			village = EXCLUDED.village,
			phone = EXCLUDED.phone,
			land_size = EXCLUDED.land_size`).
		ToSql()
	if err != nil {
		return fmt.Errorf("UpsertFarmer: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("UpsertFarmer: %w", err)
	}
	return nil
}

// ListLoans returns loans, optionally only those of one farmer.
func (r *PostgresRegistryRepository) ListLoans(ctx context.Context, farmerID string) ([]models.Loan, error) {
	q := psql.
		Select("id", "farmer_id", "agent_id", "product_type", "amount", "status", "timeline", "updated_at").
		From("loans").
		OrderBy("updated_at DESC", "id")
	if farmerID != "" {
		q = q.Where(squirrel.Eq{"farmer_id": farmerID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListLoans: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListLoans: %w", err)
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLoans: %w", err)
	}
	return loans, nil
}

// UpsertLoan inserts l or replaces the loan with the same id.
func (r *PostgresRegistryRepository) UpsertLoan(ctx context.Context, l models.Loan) error {
	return putLoan(ctx, r.DB, l)
}

// ModifyLoan runs fn on the stored loan while holding its row lock and stores
// the result. It returns models.ErrNotFound for an unknown id.
func (r *PostgresRegistryRepository) ModifyLoan(ctx context.Context, id string, fn func(l *models.Loan) error) (*models.Loan, error) {
	var result *models.Loan
	err := dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query, args, err := psql.
			Select("id", "farmer_id", "agent_id", "product_type", "amount", "status", "timeline", "updated_at").
			From("loans").
			Where(squirrel.Eq{"id": id}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return fmt.Errorf("ModifyLoan: %w", err)
		}
		l, err := scanLoan(tx.QueryRowContext(ctx, query, args...))
		if isNoRows(err) {
			return fmt.Errorf("loan %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
		if err := putLoan(ctx, tx, *l); err != nil {
			return err
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(s scanner) (*models.Loan, error) {
	var (
		l        models.Loan
		status   string
		timeline []byte
	)
	if err := s.Scan(&l.ID, &l.FarmerID, &l.AgentID, &l.ProductType, &l.Amount, &status, &timeline, &l.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	l.Status = models.LoanStatus(status)
	l.Timeline = []models.LoanEvent{}
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &l.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline: %w", err)
		}
	}
	return &l, nil
}

func putLoan(ctx context.Context, db dbx.DBTX, l models.Loan) error {
	if l.Timeline == nil {
		l.Timeline = []models.LoanEvent{}
	}
	timeline, err := json.Marshal(l.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}
	query, args, err := psql.
		Insert("loans").
		Columns("id", "farmer_id", "agent_id", "product_type", "amount", "status", "timeline", "updated_at").
		Values(l.ID, l.FarmerID, l.AgentID, l.ProductType, l.Amount, string(l.Status), timeline, l.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			farmer_id = EXCLUDED.farmer_id,
			agent_id = EXCLUDED.agent_id,
			product_type = EXCLUDED.product_type,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			timeline = EXCLUDED.timeline,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("upsert loan: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert loan: %w", err)
	}
	return nil
}
