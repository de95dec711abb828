// Package bot is the orchestrator between the chat platform and the engines. It turns gateway
// events into initiation, moderation, activity and live-announcement calls, and implements the
// side-effect interfaces those engines need (prompting, ejecting, enforcing, announcing).
package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/activity"
	"github.com/onnwee/cultbot/config"
	"github.com/onnwee/cultbot/initiation"
	"github.com/onnwee/cultbot/livestream"
	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/ready"
)

// Deps wires the bot to its engines.
type Deps struct {
	Config    *config.Config
	Platform  Platform
	Ready     *ready.Signal
	Machine   *initiation.Machine
	Collector *activity.Collector
	// NewPipeline builds the moderation pipeline around the bot's enforcer.
	NewPipeline func(moderation.Enforcer) *moderation.Pipeline
	// Live is the announcer used by the /live command.
	Live *livestream.Announcer
}

// Bot handles platform events. Handlers are safe for concurrent use.
type Bot struct {
	cfg       *config.Config
	platform  Platform
	ready     *ready.Signal
	machine   *initiation.Machine
	collector *activity.Collector
	pipeline  *moderation.Pipeline
	live      *livestream.Announcer
	log       *slog.Logger

	// AfterFunc schedules delayed notice cleanup; tests replace it.
	AfterFunc func(d time.Duration, f func())
}

func New(d Deps) *Bot {
	b := &Bot{
		cfg:       d.Config,
		platform:  d.Platform,
		ready:     d.Ready,
		machine:   d.Machine,
		collector: d.Collector,
		live:      d.Live,
		log:       slog.Default().With(slog.String("component", "bot")),
		AfterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	if d.NewPipeline != nil {
		b.pipeline = d.NewPipeline(b.Enforcer())
	}
	return b
}

// SetLive picks the announcer used by the /live command: YouTube when present, otherwise the first
// one given. Announcers usually notify through the bot itself, so they are wired after New.
func (b *Bot) SetLive(as ...*livestream.Announcer) {
	b.live = nil
	for _, a := range as {
		if a == nil {
			continue
		}
		if a.Platform() == livestream.PlatformYouTube {
			b.live = a
			return
		}
		if b.live == nil {
			b.live = a
		}
	}
}

// Pipeline returns the moderation pipeline bound to this bot.
func (b *Bot) Pipeline() *moderation.Pipeline { return b.pipeline }

// OnReady marks the platform ready and validates the configured channels and roles.
func (b *Bot) OnReady(ctx context.Context) []string {
	if b.ready != nil {
		b.ready.Set()
	}
	b.log.Info("chat platform ready")
	return b.Validate(ctx)
}

// OnMemberLeave records the departure.
func (b *Bot) OnMemberLeave(ctx context.Context, guildID, userID string) {
	if err := b.collector.TrackLeave(ctx, userID, guildID, time.Now().UTC()); err != nil {
		b.log.Warn("track leave failed", slog.String("user", userID), slog.Any("err", err))
	}
}

// OnPresence records the game a member is playing; an empty game ends the open session.
func (b *Bot) OnPresence(ctx context.Context, guildID, userID, game string) {
	if err := b.collector.TrackPresence(ctx, userID, guildID, game, time.Now().UTC()); err != nil {
		b.log.Warn("track presence failed", slog.String("user", userID), slog.Any("err", err))
	}
}

// deleteLater removes a message after d. Failures are logged at debug; the message may already be
// gone.
func (b *Bot) deleteLater(channelID, messageID string, d time.Duration) {
	if messageID == "" {
		return
	}
	b.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.platform.DeleteMessage(ctx, channelID, messageID); err != nil && !errors.Is(err, ErrNotFound) {
			b.log.Debug("delayed delete failed", slog.String("message", messageID), slog.Any("err", err))
		}
	})
}

func (b *Bot) guildName(ctx context.Context, guildID string) string {
	guilds, err := b.platform.Guilds(ctx)
	if err != nil {
		return guildID
	}
	for _, g := range guilds {
		if g.ID == guildID {
			return g.Name
		}
	}
	return guildID
}
