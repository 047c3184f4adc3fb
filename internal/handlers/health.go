package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ocx/backend/internal/health"
)

// Heartbeat handles GET /__heartbeat__: runs every registered check and
// reports 200 if none failed, 503 otherwise, body JSON.
func Heartbeat(reg *health.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := reg.RunChecks(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !state.OK() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(state)
	}
}

// LBHeartbeat handles GET /__lbheartbeat__: an unconditional 200 for load
// balancer liveness probes, with no dependency checks.
func LBHeartbeat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	}
}

// Version handles GET /__version__: returns the version blob loaded at
// startup (see loadVersionBlob in cmd/collector), verbatim.
func Version(blob json.RawMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(blob)
	}
}

// Broken handles GET /__broken__: panics intentionally, to prove the
// process's panic handling and alerting surface a crash as a 500 rather
// than a silent hang or process exit.
func Broken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		panic("intentional panic from /__broken__")
	}
}
