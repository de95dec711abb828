package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/spam"
)

const (
	slowModeNoticeTTL = 5 * time.Second
	removedNoticeTTL  = 10 * time.Second

	colorOrange = 0xFFA500
	colorRed    = 0xED4245
)

// Message is an incoming guild message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Author    Member
	Content   string
	At        time.Time
}

// OnMessage runs a guild message through the moderation pipeline. Bot and direct messages are
// ignored.
func (b *Bot) OnMessage(ctx context.Context, m Message) (moderation.Verdict, error) {
	if m.Author.Bot || m.GuildID == "" || b.pipeline == nil {
		return moderation.Verdict{Outcome: moderation.OutcomeClean}, nil
	}
	author := m.Author
	account := func(context.Context) (spam.Account, error) {
		return spam.Account{Username: author.Username, CreatedAt: author.CreatedAt, DefaultAvatar: author.DefaultAvatar}, nil
	}
	v, err := b.pipeline.Process(ctx, moderation.Message{
		MessageID:   m.ID,
		ChannelID:   m.ChannelID,
		UserID:      author.UserID,
		Username:    author.Username,
		Mention:     author.Mention(),
		CommunityID: m.GuildID,
		Content:     m.Content,
		At:          m.At,
	}, account)
	if err != nil {
		b.log.Error("moderate message", slog.String("user", author.UserID), slog.String("community", m.GuildID), slog.Any("err", err))
	}
	return v, err
}

// Enforcer returns the moderation side effects bound to this bot's platform.
func (b *Bot) Enforcer() moderation.Enforcer { return &enforcer{b: b} }

type enforcer struct{ b *Bot }

func (e *enforcer) DeleteMessage(ctx context.Context, t moderation.Target, messageID string) error {
	err := e.b.platform.DeleteMessage(ctx, t.ChannelID, messageID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (e *enforcer) Ban(ctx context.Context, t moderation.Target, reason string) error {
	return e.b.platform.Ban(ctx, t.CommunityID, t.UserID, reason)
}

// Warn posts the warning embed in the channel and tries to DM the member; closed DMs are ignored.
func (e *enforcer) Warn(ctx context.Context, t moderation.Target, reason string, total int) error {
	embed := Embed{
		Title:       "⚠️ Warning",
		Description: t.Mention + ", you have been warned.",
		Color:       colorOrange,
		Fields: []EmbedField{
			{Name: "Reason", Value: reason},
			{Name: "Total Warnings", Value: fmt.Sprintf("%d", total), Inline: true},
		},
		Timestamp: time.Now().UTC(),
	}
	_, err := e.b.platform.SendEmbed(ctx, t.ChannelID, "", embed)
	dm := fmt.Sprintf("You received a warning in **%s**\n**Reason:** %s", e.b.guildName(ctx, t.CommunityID), reason)
	if dmErr := e.b.platform.DirectMessage(ctx, t.UserID, dm); dmErr != nil {
		e.b.log.Debug("warning DM not delivered", slog.String("user", t.UserID), slog.Any("err", dmErr))
	}
	return err
}

func (e *enforcer) Notice(ctx context.Context, t moderation.Target, n moderation.Notice) error {
	switch n {
	case moderation.NoticeSlowMode:
		id, err := e.b.platform.SendMessage(ctx, t.ChannelID, t.Mention+", you are in slow mode. Please wait before sending another message.")
		if err != nil {
			return err
		}
		e.b.deleteLater(t.ChannelID, id, slowModeNoticeTTL)
	case moderation.NoticeMessageRemoved:
		id, err := e.b.platform.SendEmbed(ctx, t.ChannelID, "", Embed{
			Title:       "🚫 Message Removed",
			Description: "A message from " + t.Mention + " was removed for violating server rules.",
			Color:       colorRed,
			Timestamp:   time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		e.b.deleteLater(t.ChannelID, id, removedNoticeTTL)
	}
	return nil
}

func (e *enforcer) ModLog(ctx context.Context, _ string, text string) error {
	if e.b.cfg.ModLogChannelID == "" {
		return nil
	}
	_, err := e.b.platform.SendMessage(ctx, e.b.cfg.ModLogChannelID, text)
	return err
}
