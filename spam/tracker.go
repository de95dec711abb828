package spam

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/onnwee/cultbot/telemetry"
)

const suspicionCacheSize = 4096

// Message is the tracker's view of one chat message.
type Message struct {
	UserID      string
	CommunityID string
	Content     string
	At          time.Time
}

// Evaluation is the result of scoring one message.
type Evaluation struct {
	Breakdown Breakdown
	Score     int
	WindowLen int
}

// Tracker maintains sliding windows and slow-mode state on top of a Store.
type Tracker struct {
	cfg   Config
	store Store
	cache *expirable.LRU[string, SuspicionReport]
	log   *slog.Logger

	// Clock returns the current time; tests replace it.
	Clock func() time.Time
}

func NewTracker(cfg Config, store Store) *Tracker {
	ttl := cfg.SuspicionCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Tracker{
		cfg:   cfg,
		store: store,
		cache: expirable.NewLRU[string, SuspicionReport](suspicionCacheSize, nil, ttl),
		log:   slog.Default().With(slog.String("component", "spam")),
		Clock: time.Now,
	}
}

func (t *Tracker) Config() Config { return t.cfg }

// EvaluateMessage prunes the member's window relative to msg.At, appends the message, and stores a
// fresh score. history is the member's most recent stored messages, newest first, including msg.
func (t *Tracker) EvaluateMessage(ctx context.Context, msg Message, history []string) (Evaluation, error) {
	at := msg.At
	if at.IsZero() {
		at = t.Clock()
	}
	at = at.UTC()
	var ev Evaluation
	_, err := t.store.Update(ctx, msg.UserID, msg.CommunityID, func(r *Record) error {
		w := Prune(r.Window, at, t.cfg.Window)
		ts := at
		if n := len(w); n > 0 && w[n-1].After(ts) {
			ts = w[n-1]
		}
		r.Window = append(w, ts)
		ev.WindowLen = len(r.Window)
		ev.Breakdown = Score(t.cfg, ev.WindowLen, msg.Content, history)
		ev.Score = ev.Breakdown.Total()
		r.Score = ev.Score
		r.LastCheck = t.Clock().UTC()
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	telemetry.Observe(telemetry.SpamScore, float64(ev.Score))
	if ev.Score > 0 {
		t.log.Debug("spam signals", slog.String("user", msg.UserID), slog.String("community", msg.CommunityID),
			slog.Int("score", ev.Score), slog.Int("window", ev.WindowLen), slog.Int("links", ev.Breakdown.LinkCount))
	}
	return ev, nil
}

// IsInSlowMode reports whether the member's slow mode is active. An expired slow mode is cleared.
func (t *Tracker) IsInSlowMode(ctx context.Context, userID, communityID string) (bool, error) {
	r, ok, err := t.store.Get(ctx, userID, communityID)
	if err != nil || !ok || !r.SlowModeActive {
		return false, err
	}
	now := t.Clock()
	if r.SlowModeUntil != nil && now.Before(*r.SlowModeUntil) {
		return true, nil
	}
	active := false
	_, err = t.store.Update(ctx, userID, communityID, func(r *Record) error {
		if r.SlowModeActive && r.SlowModeUntil != nil && now.Before(*r.SlowModeUntil) {
			active = true
			return nil
		}
		r.SlowModeActive = false
		r.SlowModeUntil = nil
		return nil
	})
	if err != nil {
		return false, err
	}
	if !active {
		t.log.Debug("slow mode expired", slog.String("user", userID), slog.String("community", communityID))
	}
	return active, nil
}

// ApplySlowMode activates slow mode for d and returns the expiry.
func (t *Tracker) ApplySlowMode(ctx context.Context, userID, communityID string, d time.Duration) (time.Time, error) {
	until := t.Clock().UTC().Add(d)
	_, err := t.store.Update(ctx, userID, communityID, func(r *Record) error {
		r.SlowModeActive = true
		u := until
		r.SlowModeUntil = &u
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Record returns the stored tracker state.
func (t *Tracker) Record(ctx context.Context, userID, communityID string) (Record, bool, error) {
	return t.store.Get(ctx, userID, communityID)
}

// AssessAccount scores the account for automation, caching the report per member.
func (t *Tracker) AssessAccount(userID, communityID string, acct Account, hist HistoryStats) SuspicionReport {
	key := memKey(userID, communityID)
	if r, ok := t.cache.Get(key); ok {
		return r
	}
	r := Suspicion(t.cfg, acct, hist, t.Clock())
	t.cache.Add(key, r)
	t.log.Debug("bot suspicion", slog.String("user", userID), slog.Int("score", r.Total()), slog.Bool("likely_automated", r.LikelyAutomated()))
	return r
}
