package main

import (
	"net/http"
	"sync/atomic"
	"time"
)

// healthResponse is the /health body.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// healthHandler serves the /health endpoint with liveness/readiness status.
type healthHandler struct {
	ready atomic.Bool
}

// newHealthHandler creates a healthHandler that starts in the ready state.
func newHealthHandler() *healthHandler {
	h := &healthHandler{}
	h.ready.Store(true)
	return h
}

// setUnhealthy marks the handler as not ready (called during graceful shutdown).
func (h *healthHandler) setUnhealthy() {
	h.ready.Store(false)
}

// isReady reports whether the service is accepting work.
func (h *healthHandler) isReady() bool {
	return h.ready.Load()
}

// ServeHTTP returns 200 when ready or 503 when draining.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC()}
	code := http.StatusOK
	if !h.isReady() {
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
