// Package youtubeapi wraps the YouTube Data API for one purpose: telling whether a channel is
// currently live. It authenticates with an API key and throttles calls to protect the daily quota.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/cultbot/config"
	"github.com/onnwee/cultbot/livestream"
)

// LiveOracle answers live checks for a single channel, given by id or @handle.
type LiveOracle struct {
	svc     *yt.Service
	handle  string
	limiter *rate.Limiter
	log     *slog.Logger

	mu        sync.Mutex
	channelID string
	last      livestream.Observation
	lastErr   error
}

// New builds an oracle from config. Extra client options (endpoint, HTTP client) are appended.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*LiveOracle, error) {
	if err := cfg.ValidateYouTubeReady(); err != nil {
		return nil, err
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.YouTubeAPIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	perMinute := cfg.YouTubeRatePerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	return &LiveOracle{
		svc:       svc,
		handle:    strings.TrimSpace(cfg.YouTubeChannelHandle),
		channelID: strings.TrimSpace(cfg.YouTubeChannelID),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		log:       slog.Default().With(slog.String("component", "youtube")),
	}, nil
}

// ChannelID returns the configured channel id, resolving the handle on first use.
func (o *LiveOracle) ChannelID(ctx context.Context) (string, error) {
	o.mu.Lock()
	id := o.channelID
	o.mu.Unlock()
	if id != "" {
		return id, nil
	}
	if o.handle == "" {
		return "", errors.New("youtube: no channel id or handle configured")
	}
	resp, err := o.svc.Channels.List([]string{"id"}).ForHandle(o.handle).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", o.handle, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("youtube: channel %s not found", o.handle)
	}
	id = resp.Items[0].Id
	o.mu.Lock()
	o.channelID = id
	o.mu.Unlock()
	o.log.Info("resolved youtube channel", slog.String("handle", o.handle), slog.String("channel_id", id))
	return id, nil
}

// CheckIfLive searches the channel's live broadcasts. When throttled it returns the previous answer.
func (o *LiveOracle) CheckIfLive(ctx context.Context) (livestream.Observation, error) {
	if !o.limiter.Allow() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.log.Debug("youtube check throttled; using cached result")
		return o.last, o.lastErr
	}
	obs, err := o.search(ctx)
	o.mu.Lock()
	o.last, o.lastErr = obs, err
	o.mu.Unlock()
	return obs, err
}

func (o *LiveOracle) search(ctx context.Context) (livestream.Observation, error) {
	id, err := o.ChannelID(ctx)
	if err != nil {
		return livestream.Observation{}, err
	}
	resp, err := o.svc.Search.List([]string{"id"}).
		ChannelId(id).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return livestream.Observation{}, fmt.Errorf("youtube live search: %w", err)
	}
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return livestream.Observation{Live: true, VideoID: item.Id.VideoId, URL: "https://www.youtube.com/watch?v=" + item.Id.VideoId}, nil
		}
	}
	return livestream.Observation{}, nil
}

// ResolveChannelURL returns the public channel page.
func (o *LiveOracle) ResolveChannelURL(ctx context.Context) (string, error) {
	if o.handle != "" {
		h := o.handle
		if !strings.HasPrefix(h, "@") {
			h = "@" + h
		}
		return "https://www.youtube.com/" + h, nil
	}
	id, err := o.ChannelID(ctx)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/channel/" + id, nil
}
