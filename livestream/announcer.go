package livestream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/cultbot/telemetry"
)

// Outcome reports one check.
type Outcome struct {
	Status     Status
	Live       bool
	Announced  bool
	URL        string
	ChannelURL string // set on manual checks that found no stream
}

// Announcer runs checks for one platform. Checks are serialized so a manual trigger and the
// scheduled loop cannot announce the same stream twice.
type Announcer struct {
	platform Platform
	oracle   Oracle
	store    Store
	notifier Notifier
	log      *slog.Logger
	mu       sync.Mutex

	Clock func() time.Time
}

func NewAnnouncer(p Platform, oracle Oracle, store Store, notifier Notifier) *Announcer {
	return &Announcer{
		platform: p,
		oracle:   oracle,
		store:    store,
		notifier: notifier,
		log:      slog.Default().With(slog.String("component", "live_announcer"), slog.String("platform", string(p))),
		Clock:    time.Now,
	}
}

func (a *Announcer) Platform() Platform { return a.platform }

// Status returns the stored status.
func (a *Announcer) Status(ctx context.Context) (Status, error) { return a.store.Get(ctx, a.platform) }

// CheckAndAnnounce queries the oracle once and announces when the transition calls for it.
// Oracle failures count as not live. The announcement is only marked sent when the notifier
// succeeds; a notifier error is returned and the next check retries.
func (a *Announcer) CheckAndAnnounce(ctx context.Context, manual bool) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, span := telemetry.StartSpan(ctx, "livestream", "livestream.check", telemetry.PlatformAttr(string(a.platform)))
	defer span.End()

	prev, err := a.store.Get(ctx, a.platform)
	if err != nil {
		telemetry.RecordError(span, err)
		return Outcome{}, err
	}
	prev.Platform = a.platform

	obs, err := a.oracle.CheckIfLive(ctx)
	result := "offline"
	if err != nil {
		a.log.Warn("live check failed", slog.Any("err", err))
		obs = Observation{}
		result = "error"
	} else if obs.Live {
		result = "live"
	}
	telemetry.IncVec(telemetry.LiveChecks, string(a.platform), result)

	next, announce := Transition(prev, obs, manual, a.Clock().UTC())
	out := Outcome{Live: next.IsLive, URL: obs.URL}
	var notifyErr error
	if announce {
		notifyErr = a.notifier.AnnounceLive(ctx, Announcement{Platform: a.platform, VideoID: obs.VideoID, URL: obs.URL, Manual: manual})
		if notifyErr == nil {
			next.AnnouncementSent = true
			out.Announced = true
			telemetry.IncVec(telemetry.Announcements, string(a.platform))
			a.log.Info("live announcement sent", slog.String("video", obs.VideoID), slog.Bool("manual", manual))
		} else {
			a.log.Warn("live announcement failed", slog.String("video", obs.VideoID), slog.Any("err", notifyErr))
		}
	}
	if err := a.store.Save(ctx, next); err != nil {
		telemetry.RecordError(span, err)
		return out, err
	}
	out.Status = next

	if manual && !next.IsLive {
		if u, err := a.oracle.ResolveChannelURL(ctx); err == nil {
			out.ChannelURL = u
		} else {
			a.log.Warn("resolve channel url failed", slog.Any("err", err))
		}
	}
	if notifyErr != nil {
		telemetry.RecordError(span, notifyErr)
		return out, fmt.Errorf("announce %s: %w", a.platform, notifyErr)
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}
