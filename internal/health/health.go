// Package health implements the liveness and readiness probes mounted on the
// API router.
//
// Liveness (/healthz) answers 200 whenever the process can serve HTTP.
// Readiness (/readyz) runs the registered [Checker] probes, the call store
// being the usual one, and answers 503 until every probe passes, which keeps
// new calls from being routed to a node that cannot persist them.
//
// Responses are JSON: {"status":"ok"} or {"status":"fail"} plus a "checks"
// map with one entry per probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout caps a single readiness probe. A hung store connection must
// not stall the whole readiness endpoint.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the
// dependency can serve and must respect context cancellation.
type Checker struct {
	// Name keys the probe's entry in the response, e.g. "store".
	Name string

	Check func(ctx context.Context) error
}

// status is the response body of both probe endpoints.
type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler holds the readiness probes. The probe set is fixed at construction;
// the handler methods are plain [http.HandlerFunc]s so the API router can
// mount them however it likes.
type Handler struct {
	checkers []Checker
}

// New creates a Handler that runs the given probes on every readiness
// request, in order.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz answers the liveness probe. Always 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

// Readyz answers the readiness probe: 200 when every probe passes, 503 with
// the failing probes named otherwise. Each probe gets its own deadline
// derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.runChecks(r.Context())

	res := status{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ready {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(probeCtx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ready
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
