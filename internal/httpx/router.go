package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davilam/campaign-reports-go/internal/sched"
	"github.com/davilam/campaign-reports-go/internal/store"
	"github.com/davilam/campaign-reports-go/internal/utils"
)

// NewRouter wires the thin caller-facing surface over the pipeline:
// cached data reads, on-demand import triggers, run status.
func NewRouter(log *slog.Logger, cache *store.Cache, scheduler *sched.Scheduler, reg *prometheus.Registry) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Get("/campaign/{key}/data", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		entry, err := cache.Get(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no data for campaign", 404)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if entry.Degraded {
			w.Header().Set("X-Degraded", "true")
		}
		writeJSON(w, map[string]any{
			"fingerprint": entry.Fingerprint,
			"computed_at": entry.ComputedAt,
			"degraded":    entry.Degraded,
			"aggregate":   entry.Aggregate,
			"artifact":    string(entry.Artifact.Bytes),
		})
	})

	mux.Get("/campaign/{key}/status", func(w http.ResponseWriter, r *http.Request) {
		st, ok := scheduler.Status(chi.URLParam(r, "key"))
		if !ok {
			http.Error(w, "no runs for campaign", 404)
			return
		}
		writeJSON(w, st)
	})

	mux.Post("/campaign/{key}/import", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !scheduler.Known(key) {
			http.Error(w, "unknown campaign", 404)
			return
		}
		// dispara y responde; el estado se consulta en /status
		go func() {
			if _, err := scheduler.Trigger(r.Context(), key); err != nil {
				log.Error("on-demand import failed", slog.String("campaign", key), slog.String("err", err.Error()))
			}
		}()
		w.WriteHeader(202)
		w.Write([]byte("import started"))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
