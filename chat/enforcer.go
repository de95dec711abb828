package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/twitchapi"
)

// Sayer posts to a chat channel. *twitch.Client satisfies it.
type Sayer interface {
	Say(channel, text string)
}

// Moderation is the subset of Helix used to enforce sanctions.
type Moderation interface {
	BanUser(ctx context.Context, broadcasterID, moderatorID, userID, reason string) error
	DeleteChatMessage(ctx context.Context, broadcasterID, moderatorID, messageID string) error
}

// ErrHelixNotConfigured is returned for sanctions that need Helix when no client is set.
var ErrHelixNotConfigured = errors.New("chat: helix client not configured")

// Enforcer applies moderation decisions in a Twitch channel. Helix may be nil, in which case deletes
// and bans fail with ErrHelixNotConfigured.
type Enforcer struct {
	Helix         Moderation
	Chat          Sayer
	BroadcasterID string
	ModeratorID   string
}

func (e *Enforcer) DeleteMessage(ctx context.Context, t moderation.Target, messageID string) error {
	if e.Helix == nil {
		return ErrHelixNotConfigured
	}
	err := e.Helix.DeleteChatMessage(ctx, e.BroadcasterID, e.ModeratorID, messageID)
	if errors.Is(err, twitchapi.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Enforcer) Ban(ctx context.Context, t moderation.Target, reason string) error {
	if e.Helix == nil {
		return ErrHelixNotConfigured
	}
	return e.Helix.BanUser(ctx, e.BroadcasterID, e.ModeratorID, t.UserID, reason)
}

// Warn has no direct-message counterpart on Twitch; the warning goes to chat.
func (e *Enforcer) Warn(_ context.Context, t moderation.Target, reason string, total int) error {
	e.Chat.Say(t.ChannelID, fmt.Sprintf("⚠️ %s, you have been warned. Reason: %s (total warnings: %d)", t.Mention, reason, total))
	return nil
}

func (e *Enforcer) Notice(_ context.Context, t moderation.Target, n moderation.Notice) error {
	switch n {
	case moderation.NoticeSlowMode:
		e.Chat.Say(t.ChannelID, t.Mention+", you are in slow mode. Please wait before sending another message.")
	case moderation.NoticeMessageRemoved:
		e.Chat.Say(t.ChannelID, "🚫 A message from "+t.Mention+" was removed for violating server rules.")
	}
	return nil
}

// ModLog has no channel on Twitch; entries go to the service log.
func (e *Enforcer) ModLog(_ context.Context, communityID, text string) error {
	slog.Info("twitch moderation", slog.String("component", "twitch_moderation"), slog.String("community", communityID),
		slog.String("entry", strings.ReplaceAll(text, "\n", " | ")))
	return nil
}
