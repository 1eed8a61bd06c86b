// Package httpapi exposes the snapshot store over a JSON HTTP API.
package httpapi

import (
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"alienrisk/internal/archive"
	"alienrisk/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps request bodies, import documents included.
const maxBodyBytes = 32 << 20

// Option configures the router.
type Option func(*Handler)

// WithArchive enables the /api/v1/archives routes.
func WithArchive(svc *archive.Service) Option {
	return func(h *Handler) { h.archive = svc }
}

// WithMetricsGatherer serves the gatherer's metrics on /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithExpvar serves the process expvars, store metrics included, on /debug/vars.
func WithExpvar() Option {
	return func(h *Handler) { h.expvar = true }
}

// WithClock overrides the time used to name export attachments.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	store    *core.Store
	archive  *archive.Service
	gatherer prometheus.Gatherer
	expvar   bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter builds the chi router for store.
func NewRouter(store *core.Store, logger *slog.Logger, opts ...Option) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	if h.expvar {
		r.Handle("/debug/vars", expvar.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.listSnapshots)
			r.Post("/", h.createSnapshot)
			r.Delete("/", h.clearSnapshots)
			r.Post("/delete", h.deleteSnapshots)
			r.Get("/{id}", h.getSnapshot)
			r.Patch("/{id}", h.updateSnapshot)
			r.Delete("/{id}", h.deleteSnapshot)
		})
		r.Get("/stats", h.stats)
		r.Get("/export", h.export)
		r.Post("/import", h.importDocument)
		if h.archive != nil {
			r.Route("/archives", func(r chi.Router) {
				r.Get("/", h.listArchives)
				r.Post("/", h.pushArchive)
				r.Post("/import", h.pullArchive)
				r.Get("/url", h.archiveURL)
			})
		}
	})
	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
