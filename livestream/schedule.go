package livestream

import (
	"context"
	"log/slog"
	"time"
)

// Schedule controls when and how often checks run.
type Schedule struct {
	Interval     time.Duration // default 10m
	LiveInterval time.Duration // used once the current stream was announced; default 30m
	InitialDelay time.Duration
	StartHour    int // window start, inclusive
	EndHour      int // window end, exclusive; start > end wraps past midnight
	Location     *time.Location
}

// InWindow reports whether t falls within the check window in the schedule's zone. Equal start and
// end hours, or 0..24, mean always.
func (s Schedule) InWindow(t time.Time) bool {
	if s.StartHour == s.EndHour || (s.StartHour <= 0 && s.EndHour >= 24) {
		return true
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	if s.StartHour < s.EndHour {
		return h >= s.StartHour && h < s.EndHour
	}
	return h >= s.StartHour || h < s.EndHour
}

func (s Schedule) withDefaults() Schedule {
	if s.Interval <= 0 {
		s.Interval = 10 * time.Minute
	}
	if s.LiveInterval <= 0 {
		s.LiveInterval = 30 * time.Minute
	}
	return s
}

// NextDelay backs off while an announced stream is running.
func NextDelay(s Schedule, st Status) time.Duration {
	s = s.withDefaults()
	if st.IsLive && st.AnnouncementSent {
		return s.LiveInterval
	}
	return s.Interval
}

// Gate blocks until the chat platform is ready.
type Gate interface {
	Wait(ctx context.Context) error
}

// StartChecker waits for readiness and the initial delay, then checks within the window until ctx
// is cancelled. Outside the window it sleeps one Interval at a time.
func StartChecker(ctx context.Context, gate Gate, a *Announcer, s Schedule) {
	s = s.withDefaults()
	log := slog.Default().With(slog.String("component", "live_checker"), slog.String("platform", string(a.Platform())))
	if err := gate.Wait(ctx); err != nil {
		return
	}
	if !sleep(ctx, s.InitialDelay) {
		return
	}
	log.Info("live checker started", slog.Duration("interval", s.Interval), slog.Duration("live_interval", s.LiveInterval),
		slog.Int("window_start", s.StartHour), slog.Int("window_end", s.EndHour))
	for {
		delay := s.Interval
		if s.InWindow(a.Clock()) {
			out, err := a.CheckAndAnnounce(ctx, false)
			if err != nil {
				log.Warn("live check error", slog.Any("err", err))
			}
			delay = NextDelay(s, out.Status)
		}
		if !sleep(ctx, delay) {
			log.Info("live checker stopped")
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
