package initiation

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/telemetry"
)

// Gate blocks until the chat platform is ready.
type Gate interface {
	Wait(ctx context.Context) error
}

// Membership lists the communities served and the members in each that have not completed
// initiation.
type Membership interface {
	Communities(ctx context.Context) ([]string, error)
	Uninitiated(ctx context.Context, communityID string) ([]Member, error)
}

// JobConfig tunes the background sweep.
type JobConfig struct {
	Interval   time.Duration // default 5m
	Timeout    time.Duration // default 24h
	MaxJoinAge time.Duration // 0 disables the recovery cutoff
}

// StartExpiryJob waits for readiness, then every Interval runs the recovery sweep for each community
// followed by the expiry sweep. Errors are logged and the loop continues until ctx is cancelled.
func StartExpiryJob(ctx context.Context, cfg JobConfig, gate Gate, m *Machine, members Membership, p Prompter, e Ejector) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 24 * time.Hour
	}
	log := slog.Default().With(slog.String("component", "initiation_sweep"))
	if err := gate.Wait(ctx); err != nil {
		return
	}
	log.Info("expiry sweep started", slog.Duration("interval", cfg.Interval), slog.Duration("timeout", cfg.Timeout))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		telemetry.TimeFunc(telemetry.SweepDuration, func() { m.sweepOnce(ctx, cfg, members, p, e, log) })
		select {
		case <-ctx.Done():
			log.Info("expiry sweep stopped")
			return
		case <-ticker.C:
		}
	}
}

func (m *Machine) sweepOnce(ctx context.Context, cfg JobConfig, members Membership, p Prompter, e Ejector, log *slog.Logger) {
	communities, err := members.Communities(ctx)
	if err != nil {
		log.Warn("list communities failed", slog.Any("err", err))
	}
	for _, c := range communities {
		list, err := members.Uninitiated(ctx, c)
		if err != nil {
			log.Warn("list uninitiated members failed", slog.String("community", c), slog.Any("err", err))
			continue
		}
		if _, err := m.ReconcileMembership(ctx, c, list, cfg.MaxJoinAge, p); err != nil {
			log.Warn("recovery sweep failed", slog.String("community", c), slog.Any("err", err))
		}
	}
	n, err := m.SweepExpired(ctx, cfg.Timeout, e)
	if err != nil {
		log.Warn("expiry sweep failed", slog.Any("err", err))
	} else if n > 0 {
		log.Info("expired initiation sessions", slog.Int("count", n))
	}
	if pending, err := m.store.CountPending(ctx); err == nil {
		telemetry.SetPendingSessions(pending)
	}
}
