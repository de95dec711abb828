// Package discord adapts a discordgo session to the bot: it implements bot.Platform on the REST
// API and feeds gateway events into the bot's handlers.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/cultbot/bot"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildPresences

// Platform implements bot.Platform over a discordgo session.
type Platform struct {
	s   *discordgo.Session
	log *slog.Logger
}

// New creates a session for the bot token. The gateway is not opened until Run.
func New(token string) (*Platform, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = intents
	return &Platform{s: s, log: slog.Default().With(slog.String("component", "discord"))}, nil
}

// mapErr turns REST 404s into bot.ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", bot.ErrNotFound, err)
	}
	return err
}

func (p *Platform) Guilds(context.Context) ([]bot.Guild, error) {
	p.s.State.RLock()
	defer p.s.State.RUnlock()
	out := make([]bot.Guild, 0, len(p.s.State.Guilds))
	for _, g := range p.s.State.Guilds {
		out = append(out, bot.Guild{ID: g.ID, Name: g.Name})
	}
	return out, nil
}

func (p *Platform) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	m, err := p.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	return m.ID, nil
}

func (p *Platform) SendButtons(ctx context.Context, channelID, content string, buttons []bot.Button) (string, error) {
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{Label: b.Label, Style: discordgo.PrimaryButton, CustomID: b.CustomID})
	}
	m, err := p.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: []discordgo.MessageComponent{row},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	return m.ID, nil
}

func (p *Platform) SendEmbed(ctx context.Context, channelID, content string, e bot.Embed) (string, error) {
	m, err := p.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{toEmbed(e)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	return m.ID, nil
}

func toEmbed(e bot.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return out
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapErr(p.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(p.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(p.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (p *Platform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(p.s.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (p *Platform) Ban(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(p.s.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

func (p *Platform) DirectMessage(ctx context.Context, userID, content string) error {
	ch, err := p.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = p.s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (p *Platform) Member(ctx context.Context, guildID, userID string) (bot.Member, error) {
	m, err := p.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return bot.Member{}, mapErr(err)
	}
	return toMember(m), nil
}

// MembersWithRole pages through the guild member list.
func (p *Platform) MembersWithRole(ctx context.Context, guildID, roleID string) ([]bot.Member, error) {
	var out []bot.Member
	after := ""
	for {
		page, err := p.s.GuildMembers(guildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
		for _, m := range page {
			if hasRole(m.Roles, roleID) {
				out = append(out, toMember(m))
			}
		}
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func hasRole(roles []string, id string) bool {
	for _, r := range roles {
		if r == id {
			return true
		}
	}
	return false
}

func (p *Platform) ChannelExists(ctx context.Context, guildID, channelID string) (bool, error) {
	ch, err := p.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if errors.Is(mapErr(err), bot.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ch.GuildID == guildID, nil
}

func (p *Platform) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	roles, err := p.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func toMember(m *discordgo.Member) bot.Member {
	if m == nil || m.User == nil {
		return bot.Member{}
	}
	return fromUser(m.User, m.JoinedAt, m.Roles)
}

func fromUser(u *discordgo.User, joined time.Time, roles []string) bot.Member {
	created, _ := discordgo.SnowflakeTimestamp(u.ID)
	return bot.Member{
		UserID:        u.ID,
		Username:      u.Username,
		JoinedAt:      joined,
		CreatedAt:     created,
		Bot:           u.Bot,
		DefaultAvatar: u.Avatar == "",
		Roles:         roles,
	}
}

// playing returns the name of the first game activity, or "".
func playing(acts []*discordgo.Activity) string {
	for _, a := range acts {
		if a != nil && a.Type == discordgo.ActivityTypeGame && a.Name != "" {
			return a.Name
		}
	}
	return ""
}
