package outbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/atinyakov/FarmCredit/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE outbox (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  resource TEXT NOT NULL,
  method TEXT NOT NULL,
  entity_id TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func TestEnqueue_ListPendingInOrder(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "/api/farmers", "POST", "f1", map[string]string{"id": "f1"})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "/api/loan-applications", "POST", "a1", map[string]string{"id": "a1"})
	require.NoError(t, err)
	id3, err := q.Enqueue(ctx, "/api/loan-applications", "POST", "a1", map[string]string{"id": "a1", "v": "2"})
	require.NoError(t, err)
	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	got, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{id1, id2, id3}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "/api/farmers", got[0].Resource)
	assert.Equal(t, "POST", got[0].Method)
	assert.Equal(t, "f1", got[0].EntityID)
	assert.JSONEq(t, `{"id":"a1","v":"2"}`, string(got[2].Body))
	assert.WithinDuration(t, time.Now(), got[0].CreatedAt, time.Minute)
}

func TestRemove_KeepsOthers(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	id1, _ := q.Enqueue(ctx, "/api/farmers", "POST", "f1", struct{}{})
	id2, _ := q.Enqueue(ctx, "/api/farmers", "POST", "f2", struct{}{})

	require.NoError(t, q.Remove(ctx, id1))
	require.NoError(t, q.Remove(ctx, 999))

	got, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id2, got[0].ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHasPending(t *testing.T) {
	db := setupDB(t)
	q := New(db)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "/api/loan-applications", "POST", "a1", struct{}{})
	require.NoError(t, err)

	ok, err := q.HasPending(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.HasPending(ctx, "a2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnqueue_RolledBackWithTransaction(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := New(tx).Enqueue(ctx, "/api/farmers", "POST", "f1", struct{}{}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := New(db).Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueue_UnencodableBody(t *testing.T) {
	db := setupDB(t)
	_, err := New(db).Enqueue(context.Background(), "/api/farmers", "POST", "f1", make(chan int))
	require.Error(t, err)
}
