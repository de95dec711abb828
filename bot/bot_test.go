package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/cultbot/activity"
	"github.com/onnwee/cultbot/config"
	"github.com/onnwee/cultbot/initiation"
	"github.com/onnwee/cultbot/livestream"
	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/profanity"
	"github.com/onnwee/cultbot/ready"
	"github.com/onnwee/cultbot/spam"
)

type sent struct {
	Channel string
	Content string
	Buttons []Button
	Embed   *Embed
}

type fakePlatform struct {
	mu       sync.Mutex
	guilds   []Guild
	members  map[string]Member // userID -> member
	channels map[string]bool
	roles    map[string]bool
	nextID   int

	sent     []sent
	deleted  []string
	added    []string
	removed  []string
	kicked   []string
	banned   []string
	dms      []string
	sendErr  error
	kickErr  error
	memberFn func(userID string) (Member, error)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		guilds:   []Guild{{ID: "g1", Name: "The Cult"}},
		members:  map[string]Member{},
		channels: map[string]bool{},
		roles:    map[string]bool{},
	}
}

func (f *fakePlatform) Guilds(context.Context) ([]Guild, error) { return f.guilds, nil }

func (f *fakePlatform) record(s sent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, s)
	return fmt.Sprintf("m%d", f.nextID), nil
}

func (f *fakePlatform) SendMessage(_ context.Context, ch, content string) (string, error) {
	return f.record(sent{Channel: ch, Content: content})
}

func (f *fakePlatform) SendButtons(_ context.Context, ch, content string, b []Button) (string, error) {
	return f.record(sent{Channel: ch, Content: content, Buttons: b})
}

func (f *fakePlatform) SendEmbed(_ context.Context, ch, content string, e Embed) (string, error) {
	return f.record(sent{Channel: ch, Content: content, Embed: &e})
}

func (f *fakePlatform) DeleteMessage(_ context.Context, ch, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ch+"/"+id)
	return nil
}

func (f *fakePlatform) AddRole(_ context.Context, _, u, r string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, u+":"+r)
	return nil
}

func (f *fakePlatform) RemoveRole(_ context.Context, _, u, r string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, u+":"+r)
	return nil
}

func (f *fakePlatform) Kick(_ context.Context, _, u, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicked = append(f.kicked, u+": "+reason)
	return nil
}

func (f *fakePlatform) Ban(_ context.Context, _, u, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned = append(f.banned, u+": "+reason)
	return nil
}

func (f *fakePlatform) DirectMessage(_ context.Context, u, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, u+": "+content)
	return nil
}

func (f *fakePlatform) Member(_ context.Context, _, u string) (Member, error) {
	if f.memberFn != nil {
		return f.memberFn(u)
	}
	m, ok := f.members[u]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (f *fakePlatform) MembersWithRole(context.Context, string, string) ([]Member, error) {
	var out []Member
	for _, m := range f.members {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakePlatform) ChannelExists(_ context.Context, _, ch string) (bool, error) {
	return f.channels[ch], nil
}

func (f *fakePlatform) RoleExists(_ context.Context, _, r string) (bool, error) { return f.roles[r], nil }

func (f *fakePlatform) sentTo(ch string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.Channel == ch {
			out = append(out, s)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		GatewayChannelID:       "gateway",
		RitualChannelID:        "ritual",
		ModLogChannelID:        "modlog",
		TransmissionsChannelID: "transmissions",
		UninitiatedRoleID:      "r-uninit",
		SilentWitnessRoleID:    "r-witness",
		NeonDiscipleRoleID:     "r-disciple",
		VeiledArchivistRoleID:  "r-archivist",
		NeonDiscipleGifURL:     "https://gif.example/neon.gif",
		InitiationTimeoutHours: 24,
		YouTubeChannelHandle:   "@channel",
	}
}

type env struct {
	bot      *Bot
	platform *fakePlatform
	machine  *initiation.Machine
	activity *activity.MemStore
	modlog   *moderation.MemLog
	delayed  []time.Duration
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		platform: newFakePlatform(),
		machine:  initiation.NewMachine(initiation.NewMemStore()),
		activity: activity.NewMemStore(),
		modlog:   moderation.NewMemLog(),
	}
	collector := activity.NewCollector(e.activity, nil)
	tracker := spam.NewTracker(spam.DefaultConfig(), spam.NewMemStore())
	e.bot = New(Deps{
		Config:    testConfig(),
		Platform:  e.platform,
		Ready:     ready.New(),
		Machine:   e.machine,
		Collector: collector,
		NewPipeline: func(enf moderation.Enforcer) *moderation.Pipeline {
			return &moderation.Pipeline{
				Collector: collector,
				Detector:  profanity.NewDetector([]string{"word"}),
				Tracker:   tracker,
				Moderator: moderation.NewModerator(e.modlog, e.activity, tracker, enf),
				Enforcer:  enf,
				Policy:    moderation.DefaultPolicy(),
			}
		},
	})
	e.bot.AfterFunc = func(d time.Duration, f func()) {
		e.delayed = append(e.delayed, d)
		f()
	}
	return e
}

func TestOnMemberJoin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.bot.OnMemberJoin(ctx, "g1", Member{UserID: "u1", Username: "neo"}))

	assert.Equal(t, []string{"u1:r-uninit"}, e.platform.added)
	gateway := e.platform.sentTo("gateway")
	require.Len(t, gateway, 1)
	assert.Contains(t, gateway[0].Content, "A new presence enters: <@u1>.")
	assert.Contains(t, gateway[0].Content, "<#ritual>")
	assert.Contains(t, gateway[0].Content, "**24 hours**")

	ritual := e.platform.sentTo("ritual")
	require.Len(t, ritual, 1)
	assert.Len(t, ritual[0].Buttons, 3)

	s, err := e.machine.GetPendingSession(ctx, "u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "ritual", s.RitualChannelID)
	assert.Equal(t, "m2", s.RitualMessageID)

	st, err := e.activity.Stats(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Joins)
}

func TestOnMemberRejoinKeepsRitual(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.bot.OnMemberJoin(ctx, "g1", Member{UserID: "u1"}))
	e.bot.OnMemberLeave(ctx, "g1", "u1")
	require.NoError(t, e.bot.OnMemberJoin(ctx, "g1", Member{UserID: "u1"}))

	assert.Len(t, e.platform.sentTo("ritual"), 1)
	assert.Len(t, e.platform.sentTo("gateway"), 1)
	assert.Equal(t, []string{"u1:r-uninit", "u1:r-uninit"}, e.platform.added)

	s, err := e.machine.GetPendingSession(ctx, "u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, s)
	reply, err := e.bot.OnButton(ctx, ButtonClick{GuildID: "g1", UserID: "u1", MessageID: s.RitualMessageID, CustomID: ButtonSilentWitness})
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestWithdrawDeletesRitual(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.bot.Withdraw(context.Background(), "ritual", "m9"))
	assert.Equal(t, []string{"ritual/m9"}, e.platform.deleted)
}

func TestOnMemberJoinIgnoresBots(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.bot.OnMemberJoin(context.Background(), "g1", Member{UserID: "b1", Bot: true}))
	assert.Empty(t, e.platform.sent)
	assert.Empty(t, e.platform.added)
}

func TestOnButtonCompletesInitiation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.bot.OnMemberJoin(ctx, "g1", Member{UserID: "u1"}))
	s, err := e.machine.GetPendingSession(ctx, "u1", "g1")
	require.NoError(t, err)

	reply, err := e.bot.OnButton(ctx, ButtonClick{GuildID: "g1", UserID: "u1", MessageID: s.RitualMessageID, CustomID: ButtonNeonDisciple})
	require.NoError(t, err)
	assert.Empty(t, reply)

	assert.Equal(t, []string{"u1:r-uninit"}, e.platform.removed)
	assert.Contains(t, e.platform.added, "u1:r-disciple")
	assert.Contains(t, e.platform.deleted, "ritual/"+s.RitualMessageID)
	ritual := e.platform.sentTo("ritual")
	last := ritual[len(ritual)-1].Content
	assert.Equal(t, "<@u1> has chosen the path of the **Neon Disciple**.\nhttps://gif.example/neon.gif\nGreet them.", last)

	pending, err := e.machine.GetPendingSession(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestOnButtonRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	reply, err := e.bot.OnButton(ctx, ButtonClick{GuildID: "g1", UserID: "u1", MessageID: "x", CustomID: ButtonSilentWitness})
	require.NoError(t, err)
	assert.Equal(t, ReplyNoPending, reply)

	require.NoError(t, e.bot.OnMemberJoin(ctx, "g1", Member{UserID: "u1"}))
	reply, err = e.bot.OnButton(ctx, ButtonClick{GuildID: "g1", UserID: "u1", MessageID: "someone-elses", CustomID: ButtonSilentWitness})
	require.NoError(t, err)
	assert.Equal(t, ReplyNotYours, reply)

	s, err := e.machine.GetPendingSession(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.NotNil(t, s)

	reply, err = e.bot.OnButton(ctx, ButtonClick{GuildID: "g1", UserID: "u1", MessageID: s.RitualMessageID, CustomID: "unrelated"})
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestEject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := initiation.Session{ID: "s1", UserID: "u1", CommunityID: "g1", RitualChannelID: "ritual", RitualMessageID: "m9"}

	t.Run("absent member counts as ejected", func(t *testing.T) {
		require.NoError(t, e.bot.Eject(ctx, s))
		assert.Empty(t, e.platform.kicked)
	})

	t.Run("present member is kicked", func(t *testing.T) {
		e.platform.members["u1"] = Member{UserID: "u1"}
		require.NoError(t, e.bot.Eject(ctx, s))
		assert.Equal(t, []string{"u1: Failed to complete initiation within 24 hours"}, e.platform.kicked)
		assert.Contains(t, e.platform.deleted, "ritual/m9")
		ritual := e.platform.sentTo("ritual")
		require.NotEmpty(t, ritual)
		assert.Equal(t, "<@u1> has failed to complete the rites.\nThey have been cast out of the Cult.", ritual[len(ritual)-1].Content)
	})

	t.Run("kick failure is returned", func(t *testing.T) {
		e.platform.kickErr = errors.New("missing permissions")
		assert.Error(t, e.bot.Eject(ctx, s))
	})
}

func TestSweepRecoversAndExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.machine.Clock = func() time.Time { return now }
	e.platform.members["u1"] = Member{UserID: "u1", JoinedAt: now.Add(-time.Hour)}

	list, err := e.bot.Uninitiated(ctx, "g1")
	require.NoError(t, err)
	n, err := e.machine.ReconcileMembership(ctx, "g1", list, 0, e.bot)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// Recovery re-sends only the ritual prompt.
	assert.Empty(t, e.platform.sentTo("gateway"))
	assert.Len(t, e.platform.sentTo("ritual"), 1)

	now = now.Add(25 * time.Hour)
	n, err = e.machine.SweepExpired(ctx, 24*time.Hour, e.bot)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, e.platform.kicked, 1)
}

func TestOnMessageProfanity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := Member{UserID: "u1", Username: "neo", CreatedAt: time.Now().Add(-365 * 24 * time.Hour)}

	v, err := e.bot.OnMessage(ctx, Message{ID: "msg1", ChannelID: "general", GuildID: "g1", Author: author, Content: "a w0rd here"})
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeProfanity, v.Outcome)

	assert.Contains(t, e.platform.deleted, "general/msg1")
	general := e.platform.sentTo("general")
	require.NotEmpty(t, general)
	var titles []string
	for _, s := range general {
		if s.Embed != nil {
			titles = append(titles, s.Embed.Title)
		}
	}
	assert.Contains(t, titles, "⚠️ Warning")
	assert.Contains(t, titles, "🚫 Message Removed")
	assert.Contains(t, e.delayed, removedNoticeTTL)
	require.Len(t, e.platform.dms, 1)
	assert.Contains(t, e.platform.dms[0], "You received a warning in **The Cult**")
	assert.NotEmpty(t, e.platform.sentTo("modlog"))
}

func TestOnMessageIgnoresBotsAndDMs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.bot.OnMessage(ctx, Message{ID: "1", GuildID: "g1", Author: Member{UserID: "b", Bot: true}, Content: "word"})
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeClean, v.Outcome)

	v, err = e.bot.OnMessage(ctx, Message{ID: "2", Author: Member{UserID: "u"}, Content: "word"})
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeClean, v.Outcome)
	assert.Empty(t, e.platform.deleted)
}

func TestSlowModeNotice(t *testing.T) {
	e := newEnv(t)
	err := e.bot.Enforcer().Notice(context.Background(), moderation.Target{Mention: "<@u1>", ChannelID: "general"}, moderation.NoticeSlowMode)
	require.NoError(t, err)
	general := e.platform.sentTo("general")
	require.Len(t, general, 1)
	assert.Equal(t, "<@u1>, you are in slow mode. Please wait before sending another message.", general[0].Content)
	assert.Equal(t, []time.Duration{slowModeNoticeTTL}, e.delayed)
	assert.Contains(t, e.platform.deleted, "general/m1")
}

type fakeOracle struct {
	obs livestream.Observation
	err error
}

func (o *fakeOracle) CheckIfLive(context.Context) (livestream.Observation, error) { return o.obs, o.err }
func (o *fakeOracle) ResolveChannelURL(context.Context) (string, error) {
	return "https://www.youtube.com/@channel", nil
}

func TestAnnounceLive(t *testing.T) {
	e := newEnv(t)
	e.platform.guilds = append(e.platform.guilds, Guild{ID: "g2", Name: "Other"})
	e.platform.channels["transmissions"] = true

	err := e.bot.AnnounceLive(context.Background(), livestream.Announcement{
		Platform: livestream.PlatformYouTube, VideoID: "v1", URL: "https://www.youtube.com/watch?v=v1",
	})
	require.NoError(t, err)
	posts := e.platform.sentTo("transmissions")
	require.Len(t, posts, 2)
	assert.Equal(t, "@everyone", posts[0].Content)
	require.NotNil(t, posts[0].Embed)
	assert.Equal(t, "🔴 LIVE NOW ON YOUTUBE", posts[0].Embed.Title)
	assert.Equal(t, "Auto-detected", posts[0].Embed.Footer)
	assert.Equal(t, youtubeThumbnail, posts[0].Embed.Thumbnail)
	assert.Equal(t, "[Click here to watch](https://www.youtube.com/watch?v=v1)", posts[0].Embed.Fields[0].Value)
}

func TestAnnounceLiveFailsWhenNothingSent(t *testing.T) {
	e := newEnv(t)
	e.platform.channels["transmissions"] = true
	e.platform.sendErr = errors.New("forbidden")
	err := e.bot.AnnounceLive(context.Background(), livestream.Announcement{Platform: livestream.PlatformTwitch, URL: "https://www.twitch.tv/x"})
	assert.Error(t, err)
}

func TestLiveCommand(t *testing.T) {
	e := newEnv(t)
	e.platform.channels["transmissions"] = true
	oracle := &fakeOracle{}
	e.bot.SetLive(livestream.NewAnnouncer(livestream.PlatformYouTube, oracle, livestream.NewMemStore(), e.bot))
	ctx := context.Background()

	reply, err := e.bot.OnCommand(ctx, CommandLive, "admin")
	require.NoError(t, err)
	assert.Equal(t, "⚠️ No live stream detected on your channel.\nChannel: https://www.youtube.com/@channel", reply)

	oracle.obs = livestream.Observation{Live: true, VideoID: "v1", URL: "https://www.youtube.com/watch?v=v1"}
	reply, err = e.bot.OnCommand(ctx, CommandLive, "admin")
	require.NoError(t, err)
	assert.Equal(t, "✓ You're live! Announcement sent to all servers.\nStream: https://www.youtube.com/watch?v=v1", reply)

	posts := e.platform.sentTo("transmissions")
	require.Len(t, posts, 1)
	assert.Equal(t, "Manually triggered", posts[0].Embed.Footer)
}

func TestLiveCommandTwitchOnly(t *testing.T) {
	e := newEnv(t)
	e.platform.channels["transmissions"] = true
	oracle := &fakeOracle{obs: livestream.Observation{Live: true, VideoID: "s1", URL: "https://www.twitch.tv/cult"}}
	e.bot.SetLive(nil, livestream.NewAnnouncer(livestream.PlatformTwitch, oracle, livestream.NewMemStore(), e.bot))

	reply, err := e.bot.OnCommand(context.Background(), CommandLive, "admin")
	require.NoError(t, err)
	assert.Equal(t, "✓ You're live! Announcement sent to all servers.\nStream: https://www.twitch.tv/cult", reply)
	posts := e.platform.sentTo("transmissions")
	require.Len(t, posts, 1)
	assert.Equal(t, "🔴 LIVE NOW ON TWITCH", posts[0].Embed.Title)
}

func TestSetLivePrefersYouTube(t *testing.T) {
	e := newEnv(t)
	tw := livestream.NewAnnouncer(livestream.PlatformTwitch, &fakeOracle{}, livestream.NewMemStore(), e.bot)
	yt := livestream.NewAnnouncer(livestream.PlatformYouTube, &fakeOracle{}, livestream.NewMemStore(), e.bot)
	e.bot.SetLive(tw, yt)
	assert.Same(t, yt, e.bot.live)

	e.bot.SetLive()
	reply, err := e.bot.OnCommand(context.Background(), CommandLive, "admin")
	require.NoError(t, err)
	assert.Equal(t, "⚠️ Live checks are not configured.", reply)
}

func TestValidate(t *testing.T) {
	e := newEnv(t)
	e.platform.channels = map[string]bool{"gateway": true, "ritual": true, "modlog": true}
	e.platform.roles = map[string]bool{"r-uninit": true, "r-witness": true, "r-disciple": true}

	problems := e.bot.OnReady(context.Background())
	require.Len(t, problems, 2)
	joined := strings.Join(problems, "\n")
	assert.Contains(t, joined, "TRANSMISSIONS_CHANNEL_ID")
	assert.Contains(t, joined, "VEILED_ARCHIVIST_ROLE_ID")
	assert.True(t, e.bot.ready.IsSet())
}
