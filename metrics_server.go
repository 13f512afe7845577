package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status      string `json:"status"`
	RefreshedAt string `json:"refreshed_at,omitempty"`
	AgeSeconds  int64  `json:"age_seconds,omitempty"`
	Users       int    `json:"users"`
	Messages    int64  `json:"messages"`
}

// newMetricsRouter serves /metrics and /healthz. /healthz answers 503 until
// a snapshot has been committed.
func newMetricsRouter(gatherer prometheus.Gatherer, queries *queryService) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "empty"}
		code := http.StatusServiceUnavailable
		if snap := queries.store.read(); snap != nil {
			age := queries.staleness(snap)
			resp.Status = "ok"
			resp.RefreshedAt = snap.refreshedAt.UTC().Format(time.RFC3339)
			resp.AgeSeconds = int64(age.Age / time.Second)
			resp.Users = snap.userCount()
			resp.Messages = snap.totalCount
			code = http.StatusOK
		}
		body, err := fastJSONMarshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(body)
	})
	return r
}

// startMetricsServer listens on addr until ctx is cancelled. An empty addr
// disables the listener.
func startMetricsServer(ctx context.Context, addr string, handler http.Handler) {
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
}
