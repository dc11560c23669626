// Package web exposes the schedule service over HTTP as a JSON and CSV API.
package web

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"academy/internal/adapters/http/middleware"
	"academy/internal/adapters/metrics"
	"academy/internal/application/orchestrators"
	"academy/internal/domain/batch"
	"academy/internal/domain/session"
)

// DefaultMaxImportBytes caps an import body when Options.MaxImportBytes is zero.
const DefaultMaxImportBytes = 1 << 20

// ScheduleAPI is the subset of the schedule service the handlers call.
type ScheduleAPI interface {
	LoadSchedule(ctx context.Context, batchID string) (orchestrators.Schedule, error)
	SaveSlot(ctx context.Context, batchID string, slot session.Slot, patch session.Patch) (session.SessionRecord, error)
	DeleteSlot(ctx context.Context, recordID string) error
	ImportSchedule(ctx context.Context, batchID, raw string) (orchestrators.ImportScheduleResult, error)
	RenderTemplate(ctx context.Context, batchID string) (string, error)
	ListBatches(ctx context.Context) ([]batch.Batch, error)
	SaveBatch(ctx context.Context, b batch.Batch) error
}

// Options configures the router. Zero values select development defaults.
type Options struct {
	Metrics            *metrics.Recorder
	MetricsPath        string
	CSRFKey            []byte // 32 bytes; random per process when nil
	SecureCookies      bool
	TrustedOrigins     []string
	APIToken           string
	RateLimitPerSecond int
	SlowRequest        time.Duration
	MaxImportBytes     int64
	Ready              func(context.Context) error // optional readiness probe for /healthz
}

// Mux is the HTTP entry point. Close releases the rate limiter.
type Mux struct {
	router  chi.Router
	limiter *middleware.RateLimiter
}

// ServeHTTP implements http.Handler.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Close stops background work started by NewMux.
func (m *Mux) Close() {
	m.limiter.Stop()
}

type handlers struct {
	svc            ScheduleAPI
	maxImportBytes int64
	ready          func(context.Context) error
}

// NewMux wires HTTP handlers for the schedule API.
// PRE: svc is non-nil
// POST: Returns a router with the middleware chain
//
//	Timing -> RateLimit -> SecurityHeaders -> CSRF -> APIToken -> routes
func NewMux(svc ScheduleAPI, opts Options) *Mux {
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	if opts.MaxImportBytes <= 0 {
		opts.MaxImportBytes = DefaultMaxImportBytes
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	csrfKey := opts.CSRFKey
	if csrfKey == nil {
		csrfKey = randomCSRFKey()
	}

	h := &handlers{svc: svc, maxImportBytes: opts.MaxImportBytes, ready: opts.Ready}
	limiter := middleware.NewRateLimiter(opts.RateLimitPerSecond, time.Second)

	r := chi.NewRouter()
	r.Use(
		middleware.Timing(opts.Metrics, opts.SlowRequest),
		middleware.RateLimit(limiter),
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKey, opts.SecureCookies, opts.TrustedOrigins),
		middleware.APIToken(opts.APIToken, "/api/"),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, apiError{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/batches", h.handleListBatches)
		r.Put("/batches/{batchID}", h.handleSaveBatch)
		r.Get("/batches/{batchID}/schedule", h.handleGetSchedule)
		r.Put("/batches/{batchID}/schedule/{number}", h.handleSaveSlot)
		r.Post("/batches/{batchID}/schedule/import", h.handleImportSchedule)
		r.Get("/batches/{batchID}/schedule/template.csv", h.handleGetTemplate)
		r.Delete("/sessions/{recordID}", h.handleDeleteSlot)
	})
	r.Get("/healthz", h.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, opts.MetricsPath, opts.Metrics.Handler())
	}

	return &Mux{router: r, limiter: limiter}
}

// randomCSRFKey generates a per-process key for development.
func randomCSRFKey() []byte {
	key := make([]byte, 32)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(key)
	slog.Warn("csrf_key_random", "detail", "form tokens will not survive a restart; set ACADEMY_CSRF_KEY")
	return key
}
