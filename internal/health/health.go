// Package health answers orchestrator liveness and readiness requests for
// the Guardline process, served from the same listener as /metrics.
//
//   - GET /healthz reports liveness: a process that can answer HTTP is
//     alive, so it always returns 200.
//   - GET /readyz reports readiness: 200 only while every registered
//     [Checker] passes (the ticket ledger is writable, a session is
//     running, and so on).
//
// Both respond with a JSON body carrying a "status" of "ok" or "fail" and,
// for readiness, a per-checker "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkBudget bounds how long one readiness checker may run before its
// context is cancelled.
const checkBudget = 5 * time.Second

// Checker is one named readiness condition.
type Checker struct {
	// Name keys the checker's verdict in the /readyz response, e.g.
	// "ticket_ledger" or "session".
	Name string

	// Check returns nil while the condition holds and an error describing
	// the problem otherwise. It must honour ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the response body shared by both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the two endpoints over a fixed checker list.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] running the given checkers, in order, on every
// readiness request.
func New(checkers ...Checker) *Handler {
	cs := make([]Checker, len(checkers))
	copy(cs, checkers)
	return &Handler{checkers: cs}
}

// Healthz answers the liveness request. It never fails: being able to run
// this handler is the liveness criterion.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker and answers 200 when all pass, 503 otherwise.
// Each checker gets its own deadline derived from the request context, so a
// stuck dependency cannot hold the endpoint forever.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkBudget)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}

	writeReport(w, status, rep)
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
