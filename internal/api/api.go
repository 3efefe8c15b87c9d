// Package api exposes the sync observability surface over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regionsync/inbound-sync/internal/metrics"
)

// NewRouter builds the chi mux serving the stats endpoint, the
// Prometheus scrape endpoint, and a health check.
func NewRouter(store *metrics.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/api/stats/sync", statsHandler(store))
	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(store.Gatherer(), promhttp.HandlerOpts{}))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// statsHandler serves per-direction sync stats. The direction query
// parameter selects which "<source>-to-<destination>" ring to aggregate;
// when absent, both known directions are returned.
func statsHandler(store *metrics.Store) http.HandlerFunc {
	directions := []string{"india-to-china", "china-to-india"}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if dir := r.URL.Query().Get("direction"); dir != "" {
			json.NewEncoder(w).Encode(store.Stats(dir)) //nolint:errcheck
			return
		}

		out := make(map[string]metrics.Stats, len(directions))
		for _, d := range directions {
			out[d] = store.Stats(d)
		}
		json.NewEncoder(w).Encode(out) //nolint:errcheck
	}
}
