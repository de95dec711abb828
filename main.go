// Command cultbot runs the community bot: Discord onboarding and moderation, Twitch chat
// moderation, live-stream announcements and the operator HTTP API.
//
// It loads configuration, connects to Postgres and migrates, wires the engines to their stores,
// then runs every loop under one errgroup. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/cultbot/activity"
	"github.com/onnwee/cultbot/bot"
	"github.com/onnwee/cultbot/chat"
	"github.com/onnwee/cultbot/config"
	"github.com/onnwee/cultbot/db"
	"github.com/onnwee/cultbot/discord"
	"github.com/onnwee/cultbot/initiation"
	"github.com/onnwee/cultbot/livestream"
	"github.com/onnwee/cultbot/moderation"
	"github.com/onnwee/cultbot/profanity"
	"github.com/onnwee/cultbot/ready"
	"github.com/onnwee/cultbot/server"
	"github.com/onnwee/cultbot/spam"
	"github.com/onnwee/cultbot/telemetry"
	"github.com/onnwee/cultbot/twitchapi"
	"github.com/onnwee/cultbot/youtubeapi"
)

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func main() {
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("cultbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("cultbot exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shut down cleanly")
}

func spamConfig(cfg *config.Config) spam.Config {
	return spam.Config{
		MessageThreshold:    cfg.SpamMessageThreshold,
		Window:              cfg.SpamTimeWindow,
		LengthThreshold:     cfg.BotMessageLengthThreshold,
		AccountAgeThreshold: cfg.BotAccountAgeThreshold,
		LinkRatioThreshold:  cfg.BotLinkRatio,
		SuspicionCacheTTL:   cfg.SuspicionCacheTTL,
	}
}

func spamStore(ctx context.Context, cfg *config.Config, database *sql.DB) (spam.Store, error) {
	switch cfg.SpamStore {
	case "memory":
		return spam.NewMemStore(), nil
	case "redis":
		return spam.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return &spam.PGStore{DB: database}, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	database, err := db.Connect(connectCtx, cfg.DBDsn)
	cancel()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Apply(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sessions := &initiation.PGStore{DB: database}
	activityStore := &activity.PGStore{DB: database}
	modLog := &moderation.PGLog{DB: database}
	liveStore := &livestream.PGStore{DB: database}
	spamBackend, err := spamStore(ctx, cfg, database)
	if err != nil {
		return fmt.Errorf("spam store: %w", err)
	}
	slog.Info("spam store selected", slog.String("backend", cfg.SpamStore))

	sig := ready.New()
	machine := initiation.NewMachine(sessions)
	collector := activity.NewCollector(activityStore, cfg.TrackedGames)
	detector := profanity.NewDetector(cfg.ProfanityTerms)
	if detector.Len() == 0 {
		slog.Warn("no PROFANITY_TERMS configured; profanity filter is inactive")
	}
	tracker := spam.NewTracker(spamConfig(cfg), spamBackend)
	policy := moderation.Policy{
		ScoreThreshold:    cfg.SpamScoreThreshold,
		BanThreshold:      cfg.SpamBanThreshold,
		SlowMode:          cfg.SlowModeDuration,
		ProfanitySlowMode: cfg.ProfanitySlowMode,
	}
	newPipeline := func(enf moderation.Enforcer) *moderation.Pipeline {
		return &moderation.Pipeline{
			Collector: collector,
			Detector:  detector,
			Tracker:   tracker,
			Moderator: moderation.NewModerator(modLog, activityStore, tracker, enf),
			Enforcer:  enf,
			Policy:    policy,
		}
	}

	platform, err := discord.New(cfg.DiscordToken)
	if err != nil {
		return err
	}
	b := bot.New(bot.Deps{
		Config:      cfg,
		Platform:    platform,
		Ready:       sig,
		Machine:     machine,
		Collector:   collector,
		NewPipeline: newPipeline,
	})

	var helix *twitchapi.HelixClient
	if err := cfg.ValidateHelixReady(); err == nil {
		helix = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			UserToken:      strings.TrimPrefix(cfg.TwitchOAuthToken, "oauth:"),
			ClientID:       cfg.TwitchClientID,
		}
	} else {
		slog.Info("twitch helix disabled", slog.Any("reason", err))
	}

	schedule := livestream.Schedule{
		Interval:     cfg.LiveCheckInterval,
		LiveInterval: cfg.LiveAlreadyInterval,
		InitialDelay: cfg.LiveInitialDelay,
		StartHour:    cfg.LiveWindowStartHour,
		EndHour:      cfg.LiveWindowEndHour,
	}
	if loc, err := time.LoadLocation(cfg.LiveTimezone); err == nil {
		schedule.Location = loc
	} else {
		slog.Warn("unknown LIVE_TIMEZONE, using UTC", slog.String("value", cfg.LiveTimezone), slog.Any("err", err))
	}

	var announcers []*livestream.Announcer
	if err := cfg.ValidateYouTubeReady(); err == nil {
		oracle, err := youtubeapi.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("youtube client: %w", err)
		}
		announcers = append(announcers, livestream.NewAnnouncer(livestream.PlatformYouTube, oracle, liveStore, b))
	} else {
		slog.Info("youtube live checks disabled", slog.Any("reason", err))
	}
	if cfg.TwitchLiveAnnounce && helix != nil && cfg.TwitchChannel != "" {
		announcers = append(announcers, livestream.NewAnnouncer(livestream.PlatformTwitch,
			&twitchapi.LiveOracle{Client: helix, Login: cfg.TwitchChannel}, liveStore, b))
	}
	b.SetLive(announcers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return platform.Run(gctx, b) })
	g.Go(func() error {
		initiation.StartExpiryJob(gctx, initiation.JobConfig{
			Interval:   cfg.ExpiryCheckInterval,
			Timeout:    cfg.InitiationTimeout(),
			MaxJoinAge: cfg.RecoveryMaxJoinAge(),
		}, sig, machine, b, b, b)
		return nil
	})
	for _, a := range announcers {
		g.Go(func() error {
			livestream.StartChecker(gctx, sig, a, schedule)
			return nil
		})
	}
	if err := cfg.ValidateChatReady(); err == nil {
		g.Go(func() error {
			chat.StartTwitchModeration(gctx, chat.Options{
				Channel:       cfg.TwitchChannel,
				Username:      cfg.TwitchBotUsername,
				OAuthToken:    cfg.TwitchOAuthToken,
				BroadcasterID: cfg.TwitchBroadcasterID,
				ModeratorID:   cfg.TwitchModeratorID,
				Helix:         helix,
				NewPipeline:   newPipeline,
			})
			return nil
		})
	} else {
		slog.Info("twitch chat moderation disabled", slog.Any("reason", err))
	}
	g.Go(func() error {
		return server.Start(gctx, cfg.HTTPAddr, server.Deps{
			DB:         database,
			Ready:      sig,
			Sessions:   sessions,
			Announcers: announcers,
			Activity:   activityStore,
			ModLog:     modLog,
			Auth:       server.AuthConfig{Token: cfg.AdminToken, Username: cfg.AdminUsername, Password: cfg.AdminPassword},
			RateLimit:  server.RateLimitConfig{Enabled: cfg.RateLimitEnabled, RequestsPerIP: cfg.RateLimitRequests, Window: cfg.RateLimitWindow},
			CORS:       server.CORSConfig{Permissive: cfg.CORSPermissive, AllowedOrigins: cfg.CORSAllowedOrigins},
		})
	})

	slog.Info("cultbot started", slog.Int("live_checkers", len(announcers)))
	return g.Wait()
}
