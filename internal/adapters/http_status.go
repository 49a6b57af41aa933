package adapters

import (
	"encoding/json"
	"net/http"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

// StatusSource is what the HTTP status endpoint reports on.
type StatusSource interface {
	Status() (domain.ModuleStatus, error)
}

// NewStatusMux serves /healthz, /status and /metrics.
func NewStatusMux(src StatusSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", telemetry.Instrument("healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})))
	mux.Handle("/status", telemetry.Instrument("status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := src.Status()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}
