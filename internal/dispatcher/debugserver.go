package dispatcher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newDebugServer builds the dispatcher's localhost-only debug surface:
// /healthz and /metrics, for the operator's own monitoring (SPEC_FULL
// §4.8's optional local metrics endpoint). It is never addressed by
// anything other than the operator's own scraper; it carries no auth
// because it never leaves the loopback interface.
func newDebugServer(addr string, metrics *prometheus.Registry, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveDebug runs srv until ctx is cancelled, then shuts it down with a
// bounded deadline. Listen errors other than a clean shutdown are logged,
// not fatal: the debug endpoint is a convenience, not the daemon's job.
func serveDebug(ctx context.Context, srv *http.Server, logger *slog.Logger) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutting down debug server", "error", err)
	}
}
