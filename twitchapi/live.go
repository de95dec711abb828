package twitchapi

import (
	"context"
	"strings"

	"github.com/onnwee/cultbot/livestream"
)

// LiveOracle reports whether a Twitch channel is live.
type LiveOracle struct {
	Client *HelixClient
	Login  string
}

func (o *LiveOracle) channelURL() string { return "https://www.twitch.tv/" + strings.ToLower(o.Login) }

func (o *LiveOracle) CheckIfLive(ctx context.Context) (livestream.Observation, error) {
	streams, err := o.Client.GetStreams(ctx, o.Login)
	if err != nil {
		return livestream.Observation{}, err
	}
	for _, s := range streams {
		if s.Type == "live" {
			return livestream.Observation{Live: true, VideoID: s.ID, URL: o.channelURL()}, nil
		}
	}
	return livestream.Observation{}, nil
}

func (o *LiveOracle) ResolveChannelURL(context.Context) (string, error) { return o.channelURL(), nil }
