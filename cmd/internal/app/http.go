package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "authd/cmd/internal/auth/api"
)

const welcomeMessage = "Welcome to the authentication API. Auth endpoints live under /api/v1/auth."

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	backend *Backend,
	reg *prometheus.Registry,
	auth *authapi.Handler,
) {
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": cfg.ServiceName})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && backend.Name == BackendMemory {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db not configured"})
			return
		}
		if err := pingWithin(r.Context(), backend.Ping, 2*time.Second); err != nil {
			log.Info("readyz.db.not_ready", "backend", backend.Name, "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": backend.Name})
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if auth != nil {
		auth.Register(mux)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
