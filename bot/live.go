package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/cultbot/livestream"
)

// CommandLive is the admin slash command that forces a live check.
const CommandLive = "live"

const youtubeThumbnail = "https://www.youtube.com/s/desktop/6e27bc15/img/favicon_144x144.png"

// AnnounceLive posts the live embed to the transmissions channel of every guild. It fails only when
// no guild received it.
func (b *Bot) AnnounceLive(ctx context.Context, a livestream.Announcement) error {
	if b.cfg.TransmissionsChannelID == "" {
		return errors.New("TRANSMISSIONS_CHANNEL_ID not set")
	}
	guilds, err := b.platform.Guilds(ctx)
	if err != nil {
		return err
	}
	footer := "Auto-detected"
	if a.Manual {
		footer = "Manually triggered"
	}
	platform := string(a.Platform)
	embed := Embed{
		Title:       "🔴 LIVE NOW ON " + strings.ToUpper(platform),
		Description: fmt.Sprintf("Hey everyone, I'm live on %s! Come join the stream and hang out!", platform),
		URL:         a.URL,
		Color:       colorRed,
		Footer:      footer,
		Fields:      []EmbedField{{Name: "Stream Link", Value: fmt.Sprintf("[Click here to watch](%s)", a.URL)}},
		Timestamp:   time.Now().UTC(),
	}
	if a.Platform == livestream.PlatformYouTube {
		embed.Thumbnail = youtubeThumbnail
	}
	sent := 0
	var errs []error
	for _, g := range guilds {
		ok, err := b.platform.ChannelExists(ctx, g.ID, b.cfg.TransmissionsChannelID)
		if err != nil || !ok {
			b.log.Warn("transmissions channel not found", slog.String("guild", g.Name), slog.String("channel", b.cfg.TransmissionsChannelID))
			continue
		}
		if _, err := b.platform.SendEmbed(ctx, b.cfg.TransmissionsChannelID, "@everyone", embed); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", g.ID, err))
			continue
		}
		sent++
		b.log.Info("live announcement sent", slog.String("guild", g.Name), slog.String("platform", platform))
	}
	if sent == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// OnCommand handles a slash command and returns the ephemeral reply.
func (b *Bot) OnCommand(ctx context.Context, name, invokedBy string) (string, error) {
	if name != CommandLive {
		return "", nil
	}
	if b.live == nil {
		return "⚠️ Live checks are not configured.", nil
	}
	out, err := b.live.CheckAndAnnounce(ctx, true)
	b.log.Info("/live command executed", slog.String("user", invokedBy), slog.Bool("live", out.Live))
	if err != nil {
		b.log.Error("manual live check failed", slog.Any("err", err))
		if !out.Live {
			return "An error occurred while processing the command.", err
		}
	}
	if out.Live && out.URL != "" {
		return fmt.Sprintf("✓ You're live! Announcement sent to all servers.\nStream: %s", out.URL), nil
	}
	channel := out.ChannelURL
	if channel == "" {
		channel = b.cfg.YouTubeChannelHandle
	}
	return fmt.Sprintf("⚠️ No live stream detected on your channel.\nChannel: %s", channel), nil
}
