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

// PostgresApplicationRepository stores loan applications. The status column
// is authoritative; the JSON payload carries everything else.
type PostgresApplicationRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresApplicationRepository creates a repository on db.
func NewPostgresApplicationRepository(db *sql.DB) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{DB: db}
}

// ListApplications returns applications, newest first. An empty status
// returns all of them.
func (r *PostgresApplicationRepository) ListApplications(ctx context.Context, status models.Status) ([]models.Application, error) {
	q := psql.Select("status", "data").From("applications").OrderBy("created_at DESC", "id")
	if status != "" {
		q = q.Where(squirrel.Eq{"status": string(status)})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListApplications: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListApplications: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		var st string
		var data []byte
		if err := rows.Scan(&st, &data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		app, err := decodeApplication(st, data)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListApplications: %w", err)
	}
	return apps, nil
}

// GetApplication returns one application or models.ErrNotFound.
func (r *PostgresApplicationRepository) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := getApplication(ctx, r.DB, id, false)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("application %s: %w", id, models.ErrNotFound)
	}
	return app, nil
}

// ModifyApplication runs fn on the stored application (nil when absent)
// while holding its row lock, and stores what fn returns. When fn returns
// nil the row is left untouched and the current record is returned.
func (r *PostgresApplicationRepository) ModifyApplication(
	ctx context.Context,
	id string,
	fn func(existing *models.Application) (*models.Application, error),
) (*models.Application, error) {
	var result *models.Application
	err := dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := getApplication(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := fn(existing)
		if err != nil {
			return err
		}
		if next == nil {
			if existing == nil {
				return fmt.Errorf("application %s: %w", id, models.ErrNotFound)
			}
			result = existing
			return nil
		}
		if err := putApplication(ctx, tx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StatusTotal is the number of applications in a status and the sum of their
// requested amounts.
type StatusTotal struct {
	Count  int
	Amount float64
}

// StatusTotals aggregates applications by status.
func (r *PostgresApplicationRepository) StatusTotals(ctx context.Context) (map[models.Status]StatusTotal, error) {
	query, args, err := psql.
		Select("status", "COUNT(*)", "COALESCE(SUM((data->'loanRequest'->>'amount')::double precision), 0)").
		From("applications").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("StatusTotals: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("StatusTotals: %w", err)
	}
	defer rows.Close()

	totals := make(map[models.Status]StatusTotal)
	for rows.Next() {
		var (
			st string
			t  StatusTotal
		)
		if err := rows.Scan(&st, &t.Count, &t.Amount); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		totals[models.Status(st)] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("StatusTotals: %w", err)
	}
	return totals, nil
}

func getApplication(ctx context.Context, db dbx.DBTX, id string, lock bool) (*models.Application, error) {
	q := psql.Select("status", "data").From("applications").Where(squirrel.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetApplication: %w", err)
	}

	var st string
	var data []byte
	err = db.QueryRowContext(ctx, query, args...).Scan(&st, &data)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetApplication: %w", err)
	}
	return decodeApplication(st, data)
}

func putApplication(ctx context.Context, db dbx.DBTX, app *models.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	created := app.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	query, args, err := psql.
		Insert("applications").
		Columns("id", "agent_id", "submission_id", "created_at", "status", "data", "updated_at").
		Values(app.ID, app.AgentID, app.SubmissionID, created, string(app.Status), data, time.Now().UTC()).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			submission_id = EXCLUDED.submission_id,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

func decodeApplication(status string, data []byte) (*models.Application, error) {
	var app models.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("decode application: %w", err)
	}
	app.Status = models.Status(status)
	if app.Messages == nil {
		app.Messages = []models.Message{}
	}
	return &app, nil
}
