package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// HealthServer is the production HealthPublisher: it keeps the last
// published lifecycle snapshot in memory and serves it over HTTP,
// the way a container orchestrator's liveness/readiness probe expects
// to poll a small, dependency-free endpoint rather than have the
// process push to it.
type HealthServer struct {
	mu   sync.RWMutex
	snap Context
	have bool
}

// NewHealthServer builds an empty HealthServer; it reports "starting"
// until the first Publish call.
func NewHealthServer() *HealthServer {
	return &HealthServer{}
}

// Publish stores snapshot as the latest health state.
func (h *HealthServer) Publish(_ context.Context, snapshot Context) error {
	h.mu.Lock()
	h.snap = snapshot
	h.have = true
	h.mu.Unlock()
	return nil
}

// ServeHTTP renders the last published snapshot as the health probe
// body; mount it at /healthz on a dedicated HEALTH_PORT listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	snap, have := h.snap, h.have
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !have {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"phase":  snap.Phase.String(),
	})
}
