package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/initiation"
)

// Ritual button ids.
const (
	ButtonSilentWitness   = "ritual_button_silent_witness"
	ButtonNeonDisciple    = "ritual_button_neon_disciple"
	ButtonVeiledArchivist = "ritual_button_veiled_archivist"
)

// Ephemeral replies to button clicks.
const (
	ReplyNoPending   = "You don't have a pending initiation."
	ReplyNotYours    = "This is not your ritual message."
	ReplyClickFailed = "An error occurred. Please contact an administrator."
)

type pathInfo struct {
	path initiation.Path
	name string
}

var buttonPaths = map[string]pathInfo{
	ButtonSilentWitness:   {initiation.PathSilentWitness, "Silent Witness"},
	ButtonNeonDisciple:    {initiation.PathNeonDisciple, "Neon Disciple"},
	ButtonVeiledArchivist: {initiation.PathVeiledArchivist, "Veiled Archivist"},
}

var ritualButtons = []Button{
	{Label: "Become a Silent Witness", CustomID: ButtonSilentWitness},
	{Label: "Become a Neon Disciple", CustomID: ButtonNeonDisciple},
	{Label: "Become a Veiled Archivist", CustomID: ButtonVeiledArchivist},
}

func (b *Bot) roleFor(p initiation.Path) (roleID, gif string) {
	switch p {
	case initiation.PathSilentWitness:
		return b.cfg.SilentWitnessRoleID, b.cfg.SilentWitnessGifURL
	case initiation.PathNeonDisciple:
		return b.cfg.NeonDiscipleRoleID, b.cfg.NeonDiscipleGifURL
	case initiation.PathVeiledArchivist:
		return b.cfg.VeiledArchivistRoleID, b.cfg.VeiledArchivistGifURL
	}
	return "", ""
}

func (b *Bot) welcomeText(mention string) string {
	return fmt.Sprintf("A new presence enters: %s.\n\n"+
		"You have been marked as **The Uninitiated**.\n"+
		"To walk among us, you must complete the **Rite of Choosing** in <#%s>.\n"+
		"You have **%d hours** before the veil closes.", mention, b.cfg.RitualChannelID, b.cfg.InitiationTimeoutHours)
}

func (b *Bot) ritualText(mention string) string {
	return fmt.Sprintf("%s, choose your path to enter the Cult.\n\n"+
		"**Silent Witness** — for those who watch from the shadows.\n"+
		"**Neon Disciple** — for those who challenge themselves in digital arenas.\n"+
		"**Veiled Archivist** — for those who seek stories, lore, and horror.\n\n"+
		"Select one below.\n"+
		"You have **%d hours**.", mention, b.cfg.InitiationTimeoutHours)
}

// OnMemberJoin runs onboarding: Uninitiated role, gateway welcome, ritual prompt, pending session.
func (b *Bot) OnMemberJoin(ctx context.Context, guildID string, m Member) error {
	lg := b.log.With(slog.String("user", m.UserID), slog.String("community", guildID))
	if m.Bot {
		lg.Debug("ignoring bot member")
		return nil
	}
	if err := b.collector.TrackJoin(ctx, m.UserID, m.Username, guildID, time.Now().UTC()); err != nil {
		lg.Warn("track join failed", slog.Any("err", err))
	}

	pending, err := b.machine.GetPendingSession(ctx, m.UserID, guildID)
	if err != nil {
		lg.Error("pending session lookup failed", slog.Any("err", err))
		return err
	}

	if b.cfg.UninitiatedRoleID == "" {
		lg.Warn("UNINITIATED_ROLE_ID not set; skipping role assignment")
	} else if err := b.platform.AddRole(ctx, guildID, m.UserID, b.cfg.UninitiatedRoleID); err != nil {
		lg.Warn("assign Uninitiated role failed", slog.String("role", b.cfg.UninitiatedRoleID), slog.Any("err", err))
	}

	if pending != nil {
		lg.Info("member rejoined during initiation; keeping existing ritual", slog.String("session", pending.ID))
		return nil
	}

	if b.cfg.GatewayChannelID == "" {
		lg.Warn("GATEWAY_CHANNEL_ID not set; skipping welcome")
	} else if _, err := b.platform.SendMessage(ctx, b.cfg.GatewayChannelID, b.welcomeText(m.Mention())); err != nil {
		lg.Warn("gateway welcome failed", slog.String("channel", b.cfg.GatewayChannelID), slog.Any("err", err))
	}

	s, err := b.machine.StartSession(ctx, guildID, initiation.Member{UserID: m.UserID, Username: m.Username, JoinedAt: m.JoinedAt}, b)
	switch {
	case errors.Is(err, initiation.ErrPendingExists):
		lg.Info("initiation already started concurrently")
		return nil
	case errors.Is(err, errRitualUnavailable):
		lg.Warn("ritual prompt failed", slog.Any("err", err))
		return nil
	case err != nil:
		lg.Error("create initiation session failed", slog.Any("err", err))
		return err
	}
	lg.Info("initiation started", slog.String("session", s.ID), slog.Int("timeout_hours", b.cfg.InitiationTimeoutHours))
	return nil
}

var errRitualUnavailable = errors.New("ritual prompt unavailable")

// Prompt posts the ritual message with the three path buttons.
func (b *Bot) Prompt(ctx context.Context, _ string, m initiation.Member) (string, string, error) {
	if b.cfg.RitualChannelID == "" {
		return "", "", fmt.Errorf("%w: RITUAL_CHANNEL_ID not set", errRitualUnavailable)
	}
	id, err := b.platform.SendButtons(ctx, b.cfg.RitualChannelID, b.ritualText(Mention(m.UserID)), ritualButtons)
	if err != nil {
		return "", "", fmt.Errorf("%w: send ritual: %w", errRitualUnavailable, err)
	}
	return b.cfg.RitualChannelID, id, nil
}

// Withdraw deletes a ritual message that no session points at.
func (b *Bot) Withdraw(ctx context.Context, channelID, messageID string) error {
	if err := b.platform.DeleteMessage(ctx, channelID, messageID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ButtonClick is a component interaction.
type ButtonClick struct {
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	CustomID  string
}

// OnButton completes initiation for a ritual click. It returns an ephemeral reply, or "" when the
// interaction only needs acknowledging.
func (b *Bot) OnButton(ctx context.Context, c ButtonClick) (string, error) {
	info, ok := buttonPaths[c.CustomID]
	if !ok {
		return "", nil
	}
	lg := b.log.With(slog.String("user", c.UserID), slog.String("community", c.GuildID))
	s, err := b.machine.GetPendingSession(ctx, c.UserID, c.GuildID)
	if err != nil {
		lg.Error("pending session lookup failed", slog.Any("err", err))
		return ReplyClickFailed, err
	}
	if s == nil {
		return ReplyNoPending, nil
	}
	if c.MessageID != s.RitualMessageID {
		return ReplyNotYours, nil
	}

	if b.cfg.UninitiatedRoleID != "" {
		if err := b.platform.RemoveRole(ctx, c.GuildID, c.UserID, b.cfg.UninitiatedRoleID); err != nil && !errors.Is(err, ErrNotFound) {
			lg.Warn("remove Uninitiated role failed", slog.Any("err", err))
		}
	}
	roleID, gif := b.roleFor(info.path)
	if roleID == "" {
		lg.Warn("role for path not configured", slog.String("path", string(info.path)))
	} else if err := b.platform.AddRole(ctx, c.GuildID, c.UserID, roleID); err != nil {
		lg.Warn("assign path role failed", slog.String("role", roleID), slog.Any("err", err))
	}

	if err := b.platform.DeleteMessage(ctx, s.RitualChannelID, s.RitualMessageID); err != nil && !errors.Is(err, ErrNotFound) {
		lg.Warn("delete ritual message failed", slog.Any("err", err))
	}
	success := fmt.Sprintf("%s has chosen the path of the **%s**.\n%s\nGreet them.", Mention(c.UserID), info.name, gif)
	if _, err := b.platform.SendMessage(ctx, s.RitualChannelID, success); err != nil {
		lg.Warn("send success message failed", slog.Any("err", err))
	}

	if err := b.machine.CompleteSession(ctx, s.ID, info.path); err != nil {
		lg.Error("complete session failed", slog.String("session", s.ID), slog.Any("err", err))
		return ReplyClickFailed, err
	}
	lg.Info("initiation completed", slog.String("path", info.name))
	return "", nil
}

// Eject removes a member whose initiation timed out. A member that already left counts as ejected.
func (b *Bot) Eject(ctx context.Context, s initiation.Session) error {
	lg := b.log.With(slog.String("user", s.UserID), slog.String("community", s.CommunityID), slog.String("session", s.ID))
	if _, err := b.platform.Member(ctx, s.CommunityID, s.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			lg.Info("expired member already left")
			return nil
		}
		return err
	}
	ch := s.RitualChannelID
	if ch == "" {
		ch = b.cfg.RitualChannelID
	}
	if ch != "" {
		if s.RitualMessageID != "" {
			if err := b.platform.DeleteMessage(ctx, ch, s.RitualMessageID); err != nil && !errors.Is(err, ErrNotFound) {
				lg.Warn("could not delete ritual message", slog.Any("err", err))
			}
		}
		failure := fmt.Sprintf("%s has failed to complete the rites.\nThey have been cast out of the Cult.", Mention(s.UserID))
		if _, err := b.platform.SendMessage(ctx, ch, failure); err != nil {
			lg.Warn("send failure notice failed", slog.Any("err", err))
		}
	}
	reason := fmt.Sprintf("Failed to complete initiation within %d hours", b.cfg.InitiationTimeoutHours)
	if err := b.platform.Kick(ctx, s.CommunityID, s.UserID, reason); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("kick: %w", err)
	}
	lg.Info("kicked member for failing initiation")
	return nil
}

// Communities lists the guild ids the bot serves.
func (b *Bot) Communities(ctx context.Context) ([]string, error) {
	guilds, err := b.platform.Guilds(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// Uninitiated lists members still holding the Uninitiated role.
func (b *Bot) Uninitiated(ctx context.Context, guildID string) ([]initiation.Member, error) {
	if b.cfg.UninitiatedRoleID == "" {
		return nil, nil
	}
	members, err := b.platform.MembersWithRole(ctx, guildID, b.cfg.UninitiatedRoleID)
	if err != nil {
		return nil, err
	}
	out := make([]initiation.Member, 0, len(members))
	for _, m := range members {
		out = append(out, initiation.Member{UserID: m.UserID, Username: m.Username, JoinedAt: m.JoinedAt, Bot: m.Bot})
	}
	return out, nil
}
