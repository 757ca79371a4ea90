package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
)

func captureLogs(t *testing.T) *logtest.Hook {
	t.Helper()
	hook := logtest.NewLocal(logger.Log)
	t.Cleanup(func() { logger.Log.ReplaceHooks(make(logrus.LevelHooks)) })
	return hook
}

func TestLoggingSetsRequestScope(t *testing.T) {
	var runID string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID = llm.ScopeFrom(r.Context()).RunID
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if runID != "req-1" {
		t.Fatalf("expected scope run id req-1, got %q", runID)
	}
	if rec.Header().Get(RequestIDHeader) != "req-1" || rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
}

func TestRecoveryReturns500(t *testing.T) {
	hook := captureLogs(t)
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Message != "panic recovered" || entry.Data["error"] != "boom" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestLoggingMessageIsLowercase(t *testing.T) {
	hook := captureLogs(t)
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "http request" || entry.Data["path"] != "/health" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	h := RateLimit(0.001, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d %d", first.Code, second.Code)
	}
}
