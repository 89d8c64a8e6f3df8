package remote

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_ReplaysEntry(t *testing.T) {
	var (
		gotMethod, gotPath, gotCT string
		gotBody                   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotCT = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL+"/")
	err := c.Deliver(context.Background(), models.OutboxEntry{
		ID:       7,
		Resource: models.ResourceFarmers,
		Method:   http.MethodPost,
		EntityID: "f1",
		Body:     json.RawMessage(`{"id":"f1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/farmers", gotPath)
	assert.Equal(t, "application/json", gotCT)
	assert.JSONEq(t, `{"id":"f1"}`, string(gotBody))
}

func TestDeliver_NonSuccessIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.Client(), srv.URL).Deliver(context.Background(), models.OutboxEntry{
		Resource: models.ResourceLoans, Method: http.MethodPost, Body: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, ErrRemoteRejected)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, ErrUnavailable)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Error(), "bad payload")
}

func TestDeliver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(nil, url).Deliver(context.Background(), models.OutboxEntry{
		Resource: models.ResourceFarmers, Method: http.MethodPost, Body: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrRemoteRejected)
	assert.NotErrorIs(t, err, ErrRequestFailed)
}

func TestListApplications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/loan-applications", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","status":"SUBMITTED","messages":[]},{"id":"a2","status":"APPROVED"}]`))
	}))
	defer srv.Close()

	apps, err := New(srv.Client(), srv.URL).ListApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, models.StatusSubmitted, apps[0].Status)
	assert.Equal(t, "a2", apps[1].ID)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/loan-applications/missing/status", r.URL.Path)
		http.Error(w, "application not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL).UpdateStatus(context.Background(), "missing",
		models.StatusUpdate{Status: models.StatusApproved, Role: models.RoleLender})
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, err, ErrRemoteRejected)
}

func TestUpdateStatus_ReturnsStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upd models.StatusUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
		assert.Equal(t, models.RoleLender, upd.Role)
		_ = json.NewEncoder(w).Encode(models.Application{ID: "a1", Status: upd.Status})
	}))
	defer srv.Close()

	app, err := New(srv.Client(), srv.URL).UpdateStatus(context.Background(), "a1",
		models.StatusUpdate{Status: models.StatusRejected, Role: models.RoleLender})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, app.Status)
}

func TestCreateOrReplaceApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var app models.Application
		require.NoError(t, json.NewDecoder(r.Body).Decode(&app))
		app.Status = models.StatusResubmitted
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(app)
	}))
	defer srv.Close()

	stored, err := New(srv.Client(), srv.URL).CreateOrReplaceApplication(context.Background(),
		models.Application{ID: "a1", Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResubmitted, stored.Status)
}

func TestClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	hc, err := NewHTTPClient("", 50*time.Millisecond)
	require.NoError(t, err)

	err = New(hc, srv.URL).Health(context.Background())
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestNewHTTPClient_TrustsCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	hc, err := NewHTTPClient(caPath, time.Second)
	require.NoError(t, err)
	require.NoError(t, New(hc, srv.URL).Health(context.Background()))

	// Without the CA the self-signed server is untrusted.
	plain, err := NewHTTPClient("", time.Second)
	require.NoError(t, err)
	require.ErrorIs(t, New(plain, srv.URL).Health(context.Background()), ErrUnavailable)
}

func TestNewHTTPClient_BadCA(t *testing.T) {
	_, err := NewHTTPClient(filepath.Join(t.TempDir(), "missing.pem"), time.Second)
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("invalid pem"), 0o600))
	_, err = NewHTTPClient(bad, time.Second)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to parse CA cert"))
}
