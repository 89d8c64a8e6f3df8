package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler records whether it was called.
type dummyHandler struct {
	called int
	status int
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called++
	if d.status != 0 {
		w.WriteHeader(d.status)
	}
	_, _ = w.Write([]byte("ok"))
}

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dummy := &dummyHandler{status: http.StatusCreated}
	h := WithRequestLogging(zap.New(core))(dummy)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/farmers", nil))

	if dummy.called != 1 {
		t.Fatalf("next handler called %d times; want 1", dummy.called)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d entries; want 1", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) {
		t.Errorf("status field = %v; want %d", fields["status"], http.StatusCreated)
	}
	if fields["uri"] != "/api/farmers" {
		t.Errorf("uri field = %v; want /api/farmers", fields["uri"])
	}
}

func TestWithRequestLogging_ServerErrorIsError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := WithRequestLogging(zap.New(core))(&dummyHandler{status: http.StatusInternalServerError})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/loans", nil))

	if got := logs.All()[0].Level; got != zapcore.ErrorLevel {
		t.Errorf("level = %v; want error", got)
	}
}

func TestRateLimiter(t *testing.T) {
	dummy := &dummyHandler{}
	h := NewRateLimiter(0.001, 2, zap.NewNop()).Handler(dummy)

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v; want [200 200 429]", codes)
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("second client code = %d; want 200", rec.Code)
	}
	if dummy.called != 3 {
		t.Errorf("next handler called %d times; want 3", dummy.called)
	}
}
