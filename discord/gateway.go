package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/onnwee/cultbot/bot"
	"github.com/onnwee/cultbot/telemetry"
)

const handlerTimeout = 30 * time.Second

var adminPermission int64 = discordgo.PermissionAdministrator

var liveCommand = &discordgo.ApplicationCommand{
	Name:                     bot.CommandLive,
	Description:              "Manually trigger a live stream announcement",
	DefaultMemberPermissions: &adminPermission,
}

// Run opens the gateway, routes events to b and blocks until ctx is cancelled.
func (p *Platform) Run(ctx context.Context, b *bot.Bot) error {
	handle := func(name string, fn func(ctx context.Context)) {
		hctx, cancel := context.WithTimeout(telemetry.WithCorrelation(ctx, uuid.NewString()), handlerTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("handler panic", slog.String("event", name), slog.Any("panic", r))
			}
		}()
		telemetry.LoggerWithCorr(hctx).Debug("discord event", slog.String("event", name), slog.String("component", "discord"))
		fn(hctx)
	}

	p.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		p.log.Info("discord connected", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
		if _, err := s.ApplicationCommandCreate(r.User.ID, "", liveCommand); err != nil {
			p.log.Error("register /live command failed", slog.Any("err", err))
		}
		go handle("ready", func(ctx context.Context) { b.OnReady(ctx) })
	})
	p.s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.Member == nil || e.User == nil {
			return
		}
		handle("member_add", func(ctx context.Context) {
			if err := b.OnMemberJoin(ctx, e.GuildID, toMember(e.Member)); err != nil {
				p.log.Warn("member join failed", slog.String("user", e.User.ID), slog.Any("err", err))
			}
		})
	})
	p.s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
		if e.Member == nil || e.User == nil {
			return
		}
		handle("member_remove", func(ctx context.Context) { b.OnMemberLeave(ctx, e.GuildID, e.User.ID) })
	})
	p.s.AddHandler(func(_ *discordgo.Session, e *discordgo.PresenceUpdate) {
		if e.User == nil {
			return
		}
		handle("presence", func(ctx context.Context) { b.OnPresence(ctx, e.GuildID, e.User.ID, playing(e.Activities)) })
	})
	p.s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		if e.Author == nil {
			return
		}
		var joined time.Time
		if e.Member != nil {
			joined = e.Member.JoinedAt
		}
		msg := bot.Message{
			ID:        e.ID,
			ChannelID: e.ChannelID,
			GuildID:   e.GuildID,
			Author:    fromUser(e.Author, joined, nil),
			Content:   e.Content,
			At:        e.Timestamp,
		}
		handle("message", func(ctx context.Context) { _, _ = b.OnMessage(ctx, msg) })
	})
	p.s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		handle("interaction", func(ctx context.Context) { p.onInteraction(ctx, s, i, b) })
	})

	if err := p.s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	p.log.Info("closing discord gateway")
	return p.s.Close()
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// onInteraction defers every response as ephemeral, since the handlers make several REST calls
// before they know the reply.
func (p *Platform) onInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	user := interactionUser(i)
	if user == nil {
		return
	}
	var run func() (string, error)
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		click := bot.ButtonClick{
			GuildID:   i.GuildID,
			UserID:    user.ID,
			ChannelID: i.ChannelID,
			CustomID:  i.MessageComponentData().CustomID,
		}
		if i.Message != nil {
			click.MessageID = i.Message.ID
		}
		run = func() (string, error) { return b.OnButton(ctx, click) }
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		run = func() (string, error) { return b.OnCommand(ctx, name, user.Username) }
	default:
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		p.log.Warn("defer interaction failed", slog.Any("err", err))
		return
	}
	reply, err := run()
	if err != nil {
		p.log.Warn("interaction handler failed", slog.String("user", user.ID), slog.Any("err", err))
	}
	if reply == "" {
		if err := s.InteractionResponseDelete(i.Interaction); err != nil {
			p.log.Debug("delete deferred response failed", slog.Any("err", err))
		}
		return
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		p.log.Warn("interaction follow-up failed", slog.Any("err", err))
	}
}
