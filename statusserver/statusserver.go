// Package statusserver exposes a read-only HTTP debug endpoint reporting
// a running simulation's virtual clock and event counters. It is an
// observability side-channel on the simulator process itself, not
// simulated network traffic between processes, so it does not affect
// the "no real network I/O" boundary the core kernel respects.
package statusserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Status is a point-in-time snapshot of kernel progress, fetched
// through StatusProvider on every request.
type Status struct {
	Time            int32 `json:"time"`
	EventsProcessed int64 `json:"eventsProcessed"`
	EventsQueued    int   `json:"eventsQueued"`
	ProcessesUp     int   `json:"processesUp"`
}

// StatusProvider returns the kernel's current status. Implemented by the
// kernel, which returns the copy it last refreshed after processing an
// event; called on every request, so /status shows the state as of the
// most recent event.
type StatusProvider func() Status

// New builds a chi router serving GET /status (JSON Status) and GET
// /healthz (plain "ok"), reading live state through provider on every
// request.
func New(provider StatusProvider) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(provider())
	})

	return r
}
