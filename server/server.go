// Package server exposes the operator HTTP API: health, readiness, metrics, status and a few
// admin actions. Every request gets a correlation ID and, when tracing is enabled, a span.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/cultbot/activity"
	"github.com/onnwee/cultbot/livestream"
	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/ready"
	"github.com/onnwee/cultbot/telemetry"
)

// PendingCounter reports the number of open initiation sessions.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Deps are the handler dependencies. DB may be nil when every store is in memory.
type Deps struct {
	DB         *sql.DB
	Ready      *ready.Signal
	Sessions   PendingCounter
	Announcers []*livestream.Announcer
	Activity   activity.Store
	ModLog     moderation.Log

	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	d Deps
}

// NewMux returns the HTTP handler with all routes. ctx bounds the rate limiter's cleanup loop.
func NewMux(ctx context.Context, d Deps) http.Handler {
	h := &Handlers{d: d}
	limiter := newIPRateLimiter(ctx, d.RateLimit)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/admin/live/check", h.HandleAdminLiveCheck)
	mux.HandleFunc("/admin/stats", h.HandleAdminStats)
	mux.HandleFunc("/admin/messages/copies", h.HandleAdminCopies)

	admin := adminAuth(rateLimitMiddleware(mux, limiter), d.Auth)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			admin.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	return withCORS(withCorrelation(routed), d.CORS)
}

// withCorrelation reuses X-Correlation-ID or generates one, and wraps the request in a span.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.NewString()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()
		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
		if rec.statusCode >= 400 {
			telemetry.RecordError(span, fmt.Errorf("HTTP %d", rec.statusCode))
		}
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, d Deps) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, d),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
