package bot

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Platform when a member, message, channel or role does not exist.
var ErrNotFound = errors.New("bot: not found")

// Guild is a community the bot serves.
type Guild struct {
	ID   string
	Name string
}

// Member is a platform member snapshot.
type Member struct {
	UserID        string
	Username      string
	JoinedAt      time.Time // zero when unknown
	CreatedAt     time.Time // account creation; zero when unknown
	Bot           bool
	DefaultAvatar bool
	Roles         []string
}

// Mention renders the member's mention markup.
func (m Member) Mention() string { return Mention(m.UserID) }

func Mention(userID string) string { return "<@" + userID + ">" }

// Button is a clickable component attached to a message.
type Button struct {
	Label    string
	CustomID string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message card.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Thumbnail   string
	Footer      string
	Fields      []EmbedField
	Timestamp   time.Time
}

// Platform is the chat platform command surface used by the bot.
type Platform interface {
	Guilds(ctx context.Context) ([]Guild, error)
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	SendButtons(ctx context.Context, channelID, content string, buttons []Button) (string, error)
	SendEmbed(ctx context.Context, channelID, content string, e Embed) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	DirectMessage(ctx context.Context, userID, content string) error
	Member(ctx context.Context, guildID, userID string) (Member, error)
	MembersWithRole(ctx context.Context, guildID, roleID string) ([]Member, error)
	ChannelExists(ctx context.Context, guildID, channelID string) (bool, error)
	RoleExists(ctx context.Context, guildID, roleID string) (bool, error)
}
