// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Initiation lifecycle
	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsExpired   prometheus.Counter
	SessionsRecovered prometheus.Counter

	// Moderation
	SanctionsTotal *prometheus.CounterVec // label: action
	ProfanityHits  *prometheus.CounterVec // label: kind
	SpamScore      prometheus.Observer

	// Live announcements
	LiveChecks    *prometheus.CounterVec // labels: platform, result
	Announcements *prometheus.CounterVec // label: platform

	// Histograms (seconds)
	SweepDuration prometheus.Observer

	// Gauges
	PendingSessionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "cultbot_sessions_created_total", Help: "Initiation sessions created"})
		SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{Name: "cultbot_sessions_completed_total", Help: "Initiation sessions completed"})
		SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{Name: "cultbot_sessions_expired_total", Help: "Initiation sessions expired"})
		SessionsRecovered = promauto.NewCounter(prometheus.CounterOpts{Name: "cultbot_sessions_recovered_total", Help: "Initiation sessions recreated by the recovery sweep"})
		SanctionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cultbot_sanctions_total", Help: "Moderation actions recorded"}, []string{"action"})
		ProfanityHits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cultbot_profanity_hits_total", Help: "Profanity detections by match kind"}, []string{"kind"})
		SpamScore = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cultbot_spam_score", Help: "Spam score per evaluated message", Buckets: []float64{0, 3, 5, 10, 15, 20, 25, 35, 50}})
		LiveChecks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cultbot_live_checks_total", Help: "Live status checks by platform and result"}, []string{"platform", "result"})
		Announcements = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cultbot_live_announcements_total", Help: "Live announcements sent"}, []string{"platform"})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cultbot_initiation_sweep_duration_seconds", Help: "Recovery and expiry sweep duration seconds", Buckets: prometheus.DefBuckets})
		PendingSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "cultbot_pending_sessions", Help: "Pending initiation sessions at last sweep"})
	})
}

// Inc increments c if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncVec increments the labelled child of v if metrics are initialized.
func IncVec(v *prometheus.CounterVec, labels ...string) {
	if v != nil {
		v.WithLabelValues(labels...).Inc()
	}
}

// Observe records val in obs if non-nil.
func Observe(obs prometheus.Observer, val float64) {
	if obs != nil {
		obs.Observe(val)
	}
}

// SetPendingSessions records the pending session count.
func SetPendingSessions(n int) {
	if PendingSessionsGauge != nil {
		PendingSessionsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	Observe(obs, d.Seconds())
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
