package bot

import (
	"context"
	"fmt"
	"log/slog"
)

// Validate checks that the configured channels and roles exist in every guild. Problems are
// logged and returned; nothing is fatal.
func (b *Bot) Validate(ctx context.Context) []string {
	guilds, err := b.platform.Guilds(ctx)
	if err != nil {
		b.log.Warn("configuration check skipped", slog.Any("err", err))
		return []string{err.Error()}
	}
	channels := []struct{ name, id string }{
		{"GATEWAY_CHANNEL_ID", b.cfg.GatewayChannelID},
		{"RITUAL_CHANNEL_ID", b.cfg.RitualChannelID},
		{"TRANSMISSIONS_CHANNEL_ID", b.cfg.TransmissionsChannelID},
		{"MOD_LOG_CHANNEL_ID", b.cfg.ModLogChannelID},
	}
	roles := []struct{ name, id string }{
		{"UNINITIATED_ROLE_ID", b.cfg.UninitiatedRoleID},
		{"SILENT_WITNESS_ROLE_ID", b.cfg.SilentWitnessRoleID},
		{"NEON_DISCIPLE_ROLE_ID", b.cfg.NeonDiscipleRoleID},
		{"VEILED_ARCHIVIST_ROLE_ID", b.cfg.VeiledArchivistRoleID},
	}
	var problems []string
	report := func(g Guild, format string, args ...any) {
		p := fmt.Sprintf("guild %s: ", g.Name) + fmt.Sprintf(format, args...)
		problems = append(problems, p)
		b.log.Warn("configuration problem", slog.String("guild", g.ID), slog.String("problem", p))
	}
	for _, g := range guilds {
		for _, c := range channels {
			if c.id == "" {
				continue
			}
			if ok, err := b.platform.ChannelExists(ctx, g.ID, c.id); err != nil || !ok {
				report(g, "%s channel %s not found", c.name, c.id)
			}
		}
		for _, r := range roles {
			if r.id == "" {
				report(g, "%s not set", r.name)
				continue
			}
			if ok, err := b.platform.RoleExists(ctx, g.ID, r.id); err != nil || !ok {
				report(g, "%s role %s not found", r.name, r.id)
			}
		}
	}
	if len(problems) == 0 {
		b.log.Info("configuration validated", slog.Int("guilds", len(guilds)))
	}
	return problems
}
