package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*PostgresApplicationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresApplicationRepository(db), mock
}

func TestListApplications_StatusColumnWins(t *testing.T) {
	repo, mock := setupMock(t)

	rows := sqlmock.NewRows([]string{"status", "data"}).
		AddRow("APPROVED", []byte(`{"id":"a1","status":"SUBMITTED"}`)).
		AddRow("SUBMITTED", []byte(`{"id":"a2","messages":[{"id":"m1","text":"hi"}]}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, data FROM applications ORDER BY created_at DESC, id`)).
		WillReturnRows(rows)

	apps, err := repo.ListApplications(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, models.StatusApproved, apps[0].Status)
	assert.NotNil(t, apps[0].Messages)
	assert.Len(t, apps[1].Messages, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListApplications_FilterByStatus(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM applications WHERE status = $1`)).
		WithArgs("INFO_REQUESTED").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}))

	apps, err := repo.ListApplications(context.Background(), models.StatusInfoRequested)
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListApplications_QueryError(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectQuery("FROM applications").WillReturnError(errors.New("query fail"))

	_, err := repo.ListApplications(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ListApplications")
}

func TestGetApplication_NotFound(t *testing.T) {
	repo, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, data FROM applications WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}))

	_, err := repo.GetApplication(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestModifyApplication_InsertsUnderLock(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, data FROM applications WHERE id = $1 FOR UPDATE`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO applications`)).
		WithArgs("a1", "agent-1", "sub-1", sqlmock.AnyArg(), "SUBMITTED", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen *models.Application
	app, err := repo.ModifyApplication(context.Background(), "a1", func(existing *models.Application) (*models.Application, error) {
		seen = existing
		return &models.Application{ID: "a1", AgentID: "agent-1", SubmissionID: "sub-1", Status: models.StatusSubmitted}, nil
	})
	require.NoError(t, err)
	assert.Nil(t, seen)
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModifyApplication_NilResultLeavesRow(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}).AddRow("APPROVED", []byte(`{"id":"a1"}`)))
	mock.ExpectCommit()

	app, err := repo.ModifyApplication(context.Background(), "a1", func(existing *models.Application) (*models.Application, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModifyApplication_CallbackErrorRollsBack(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}).AddRow("APPROVED", []byte(`{"id":"a1"}`)))
	mock.ExpectRollback()

	_, err := repo.ModifyApplication(context.Background(), "a1", func(existing *models.Application) (*models.Application, error) {
		return nil, models.ErrInvalidTransition
	})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModifyApplication_MissingWithoutWrite(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "data"}))
	mock.ExpectRollback()

	_, err := repo.ModifyApplication(context.Background(), "a1", func(*models.Application) (*models.Application, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusTotals(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM applications GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "sum"}).
			AddRow("APPROVED", int64(2), 150000.0).
			AddRow("SUBMITTED", int64(3), 90000.0))

	totals, err := repo.StatusTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusTotal{Count: 2, Amount: 150000}, totals[models.StatusApproved])
	assert.Equal(t, 3, totals[models.StatusSubmitted].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
