package chat

import (
	"context"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/spam"
	"github.com/onnwee/cultbot/twitchapi"
)

const processTimeout = 15 * time.Second

// UserLookup loads Twitch profiles for bot-suspicion checks.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (twitchapi.User, error)
}

// Bridge converts IRC messages into pipeline messages.
type Bridge struct {
	Pipeline *moderation.Pipeline
	Users    UserLookup
}

// CommunityID keys Twitch activity apart from Discord guilds.
func CommunityID(channel string) string { return "twitch:" + channel }

// exempt reports whether the author is staff; staff messages are not moderated.
func exempt(msg twitch.PrivateMessage) bool {
	_, broadcaster := msg.User.Badges["broadcaster"]
	_, mod := msg.User.Badges["moderator"]
	return broadcaster || mod
}

// Handle runs one chat message through the pipeline.
func (b *Bridge) Handle(ctx context.Context, msg twitch.PrivateMessage) (moderation.Verdict, error) {
	if exempt(msg) {
		return moderation.Verdict{Outcome: moderation.OutcomeClean}, nil
	}
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	m := moderation.Message{
		MessageID:   msg.ID,
		ChannelID:   msg.Channel,
		UserID:      msg.User.ID,
		Username:    msg.User.Name,
		Mention:     "@" + msg.User.DisplayName,
		CommunityID: CommunityID(msg.Channel),
		Content:     msg.Message,
		At:          at.UTC(),
	}
	account := func(ctx context.Context) (spam.Account, error) {
		if b.Users == nil {
			return spam.Account{Username: msg.User.Name}, nil
		}
		u, err := b.Users.GetUser(ctx, msg.User.ID)
		if err != nil {
			return spam.Account{}, err
		}
		return spam.Account{Username: u.Login, CreatedAt: u.CreatedAt, DefaultAvatar: u.DefaultAvatar()}, nil
	}
	return b.Pipeline.Process(ctx, m, account)
}

// Options configures StartTwitchModeration.
type Options struct {
	Channel       string
	Username      string
	OAuthToken    string
	BroadcasterID string
	ModeratorID   string
	Helix         *twitchapi.HelixClient
	// NewPipeline builds the pipeline around the Twitch enforcer.
	NewPipeline func(moderation.Enforcer) *moderation.Pipeline
}

// StartTwitchModeration connects to chat and moderates it until ctx is cancelled.
func StartTwitchModeration(ctx context.Context, opts Options) {
	log := slog.Default().With(slog.String("component", "twitch_moderation"))
	if opts.Channel == "" || opts.Username == "" || opts.OAuthToken == "" {
		log.Info("twitch creds not set; skipping chat moderation")
		return
	}
	client := twitch.NewClient(opts.Username, opts.OAuthToken)
	enf := &Enforcer{Chat: client, BroadcasterID: opts.BroadcasterID, ModeratorID: opts.ModeratorID}
	bridge := &Bridge{}
	if opts.Helix != nil {
		enf.Helix = opts.Helix
		bridge.Users = opts.Helix
	} else {
		log.Warn("helix client not configured; twitch deletes and bans disabled")
	}
	bridge.Pipeline = opts.NewPipeline(enf)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		mctx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error("twitch handler panic", slog.String("user", msg.User.Name), slog.Any("panic", r))
			}
		}()
		v, err := bridge.Handle(mctx, msg)
		if err != nil {
			log.Error("moderate twitch message", slog.String("user", msg.User.Name), slog.Any("err", err))
			return
		}
		if v.Outcome != moderation.OutcomeClean {
			log.Info("twitch message moderated", slog.String("user", msg.User.Name), slog.String("outcome", string(v.Outcome)))
		}
	})
	client.OnConnect(func() { log.Info("twitch chat connected", slog.String("channel", opts.Channel)) })

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(opts.Channel)
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		log.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}
