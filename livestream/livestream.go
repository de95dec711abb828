// Package livestream polls live-status oracles and announces a stream once per broadcast.
package livestream

import (
	"context"
	"time"
)

// Platform names a streaming service. It keys the stored status.
type Platform string

const (
	PlatformYouTube Platform = "YouTube"
	PlatformTwitch  Platform = "Twitch"
)

// Status is the persisted view of one platform's stream.
type Status struct {
	Platform         Platform
	CurrentVideoID   string
	IsLive           bool
	LiveStartedAt    *time.Time
	AnnouncementSent bool
	LastCheckedAt    *time.Time
}

// Observation is one oracle answer.
type Observation struct {
	Live    bool
	VideoID string
	URL     string
}

// Oracle reports whether the configured channel is live.
type Oracle interface {
	CheckIfLive(ctx context.Context) (Observation, error)
	ResolveChannelURL(ctx context.Context) (string, error)
}

// Announcement is passed to the Notifier.
type Announcement struct {
	Platform Platform
	VideoID  string
	URL      string
	Manual   bool
}

// Notifier publishes an announcement to every community.
type Notifier interface {
	AnnounceLive(ctx context.Context, a Announcement) error
}

// Transition computes the next status for an observation and whether to announce. A live
// observation is announced when forced, when the stream id changed, or when the previous
// announcement never went out. A not-live observation resets the status so the next broadcast is
// announced again.
func Transition(prev Status, obs Observation, manual bool, now time.Time) (Status, bool) {
	next := prev
	at := now
	next.LastCheckedAt = &at
	if !obs.Live || obs.VideoID == "" {
		next.IsLive = false
		next.CurrentVideoID = ""
		next.LiveStartedAt = nil
		next.AnnouncementSent = false
		return next, false
	}
	sameStream := obs.VideoID == prev.CurrentVideoID
	announce := manual || !sameStream || !prev.AnnouncementSent
	next.IsLive = true
	next.CurrentVideoID = obs.VideoID
	if !sameStream {
		next.LiveStartedAt = nil
		next.AnnouncementSent = false
	}
	if next.LiveStartedAt == nil {
		started := now
		next.LiveStartedAt = &started
	}
	return next, announce
}
