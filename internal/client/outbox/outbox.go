// Package outbox implements the device-side queue of mutations awaiting
// delivery to the remote service. Entries are delivered in enqueue order and
// are only removed after the remote service acknowledged them.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atinyakov/FarmCredit/internal/dbx"
	"github.com/atinyakov/FarmCredit/internal/models"
)

// Queue is an outbox bound to a database handle or transaction. Binding it to
// the transaction that writes the entity makes the write and the enqueue atomic.
type Queue struct {
	db  dbx.DBTX
	now func() time.Time
}

// New returns a Queue operating on db.
func New(db dbx.DBTX) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Enqueue appends a mutation and returns its sequence id. body is marshalled to JSON.
func (q *Queue) Enqueue(ctx context.Context, resource, method, entityID string, body any) (int64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode outbox body: %w", err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO outbox (resource, method, entity_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		resource, method, entityID, string(payload), q.now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", method, resource, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue id: %w", err)
	}
	return id, nil
}

// ListPending returns all entries in enqueue order.
func (q *Queue) ListPending(ctx context.Context) ([]models.OutboxEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, resource, method, entity_id, body, created_at FROM outbox ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var (
			e       models.OutboxEntry
			body    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Resource, &e.Method, &e.EntityID, &body, &created); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Body = json.RawMessage(body)
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// Remove deletes an acknowledged entry. Removing an unknown id is not an error.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove outbox entry %d: %w", id, err)
	}
	return nil
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

// HasPending reports whether any entry still carries a mutation of entityID.
func (q *Queue) HasPending(ctx context.Context, entityID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE entity_id = ?`, entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count outbox for %s: %w", entityID, err)
	}
	return n > 0, nil
}
