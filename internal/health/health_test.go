package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func passing(_ context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rep
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "session", Check: failing("no active session")})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d; liveness must not depend on checkers", rec.Code, http.StatusOK)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("status field = %q, want ok", rep.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "ticket_ledger", Check: passing},
		Checker{Name: "session", Check: passing},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "ok" {
		t.Errorf("status field = %q, want ok", rep.Status)
	}
	if rep.Checks["ticket_ledger"] != "ok" || rep.Checks["session"] != "ok" {
		t.Errorf("checks = %v, want both ok", rep.Checks)
	}
}

func TestReadyz_FailingCheckerReports503(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "ticket_ledger", Check: failing("ledger directory missing")},
		Checker{Name: "session", Check: passing},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "fail" {
		t.Errorf("status field = %q, want fail", rep.Status)
	}
	if rep.Checks["ticket_ledger"] != "fail: ledger directory missing" {
		t.Errorf("ticket_ledger check = %q", rep.Checks["ticket_ledger"])
	}
	if rep.Checks["session"] != "ok" {
		t.Errorf("session check = %q, want ok; one failure must not hide the others", rep.Checks["session"])
	}
}

func TestReadyz_NoCheckersIsReady(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d for an empty checker list", rec.Code, http.StatusOK)
	}
}

func TestReadyz_CheckerSeesRequestCancellation(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "session", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d when the request is cancelled mid-check", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_MountsBothEndpoints(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "session", Check: passing}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
