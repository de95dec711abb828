// Package activity records what members do in a community: messages, joins and leaves, games played
// and mentioned, and sanction counters. Moderation reads it back for repetition and link history.
package activity

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Message is one stored chat message.
type Message struct {
	MessageID   string
	UserID      string
	Username    string
	CommunityID string
	ChannelID   string
	Content     string
	At          time.Time
}

// GameCount is a game and how often it was played or mentioned.
type GameCount struct {
	Game  string
	Count int
}

// Stats summarizes one member in one community.
type Stats struct {
	UserID      string
	CommunityID string
	Username    string
	Messages    int
	Warnings    int
	SlowModes   int
	Joins       int
	Leaves      int
	Banned      bool
	FirstSeen   time.Time
	LastSeen    time.Time
	CurrentGame string
	TopGames    []GameCount
}

// Game activity sources.
const (
	SourcePresence = "presence"
	SourceMention  = "mention"
)

// Store persists activity. Counters are created on first use.
type Store interface {
	RecordMessage(ctx context.Context, m Message, fingerprint uint32) error
	RecentContents(ctx context.Context, userID, communityID string, n int) ([]string, error)
	// ByFingerprint lists community messages since the given time whose content fingerprint matches,
	// newest first. Callers compare content to rule out collisions.
	ByFingerprint(ctx context.Context, communityID string, fingerprint uint32, since time.Time, limit int) ([]Message, error)
	LinkStats(ctx context.Context, userID, communityID string) (total, withLinks int, err error)
	FlagMessage(ctx context.Context, messageID, reason string) error

	RecordJoin(ctx context.Context, userID, username, communityID string, at time.Time) error
	RecordLeave(ctx context.Context, userID, communityID string, at time.Time) error

	AddWarning(ctx context.Context, userID, communityID string) (int, error)
	AddSlowMode(ctx context.Context, userID, communityID string) error
	MarkBanned(ctx context.Context, userID, communityID string) error

	SetCurrentGame(ctx context.Context, userID, communityID, game string, at time.Time) (bool, error)
	RecordMention(ctx context.Context, userID, communityID, game string, at time.Time) error

	Stats(ctx context.Context, userID, communityID string) (Stats, error)
}

// HasLink reports whether content contains a URL scheme.
func HasLink(content string) bool { return strings.Contains(strings.ToLower(content), "http") }

// Collector feeds platform events into a Store.
type Collector struct {
	store Store
	games []*regexp.Regexp
	names []string
	log   *slog.Logger
}

// NewCollector tracks mentions of the given games (lower-case names, matched as whole words).
func NewCollector(store Store, trackedGames []string) *Collector {
	c := &Collector{store: store, log: slog.Default().With(slog.String("component", "activity"))}
	for _, g := range trackedGames {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		c.names = append(c.names, g)
		c.games = append(c.games, regexp.MustCompile(`\b`+regexp.QuoteMeta(g)+`\b`))
	}
	return c
}

func (c *Collector) Store() Store { return c.store }

// TrackMessage stores the message and any tracked game mentions.
func (c *Collector) TrackMessage(ctx context.Context, m Message, fingerprint uint32) error {
	if err := c.store.RecordMessage(ctx, m, fingerprint); err != nil {
		return err
	}
	for _, g := range c.Mentions(m.Content) {
		if err := c.store.RecordMention(ctx, m.UserID, m.CommunityID, g, m.At); err != nil {
			c.log.Warn("record game mention failed", slog.String("game", g), slog.Any("err", err))
		}
	}
	return nil
}

// Mentions returns the tracked games named in content.
func (c *Collector) Mentions(content string) []string {
	lower := strings.ToLower(content)
	var out []string
	for i, re := range c.games {
		if re.MatchString(lower) {
			out = append(out, c.names[i])
		}
	}
	return out
}

// TrackPresence records the game a member is playing; an empty game ends the open session.
func (c *Collector) TrackPresence(ctx context.Context, userID, communityID, game string, at time.Time) error {
	changed, err := c.store.SetCurrentGame(ctx, userID, communityID, strings.TrimSpace(game), at)
	if err != nil {
		return err
	}
	if changed {
		c.log.Debug("game activity", slog.String("user", userID), slog.String("game", game))
	}
	return nil
}

func (c *Collector) TrackJoin(ctx context.Context, userID, username, communityID string, at time.Time) error {
	return c.store.RecordJoin(ctx, userID, username, communityID, at)
}

func (c *Collector) TrackLeave(ctx context.Context, userID, communityID string, at time.Time) error {
	if err := c.store.RecordLeave(ctx, userID, communityID, at); err != nil {
		return err
	}
	_, err := c.store.SetCurrentGame(ctx, userID, communityID, "", at)
	return err
}
