package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/telemetry"
)

// Target identifies the member and place an action applies to.
type Target struct {
	UserID      string
	Username    string
	Mention     string
	CommunityID string
	ChannelID   string
}

// Notice is a short-lived channel notice.
type Notice string

const (
	NoticeSlowMode       Notice = "slow_mode"
	NoticeMessageRemoved Notice = "message_removed"
)

// Enforcer performs platform side effects.
type Enforcer interface {
	DeleteMessage(ctx context.Context, t Target, messageID string) error
	Ban(ctx context.Context, t Target, reason string) error
	// Warn posts the channel warning and notifies the member.
	Warn(ctx context.Context, t Target, reason string, total int) error
	Notice(ctx context.Context, t Target, n Notice) error
	ModLog(ctx context.Context, communityID, text string) error
}

// Counters keeps per-member sanction totals.
type Counters interface {
	AddWarning(ctx context.Context, userID, communityID string) (int, error)
	AddSlowMode(ctx context.Context, userID, communityID string) error
	MarkBanned(ctx context.Context, userID, communityID string) error
}

// SlowModer applies slow mode.
type SlowModer interface {
	ApplySlowMode(ctx context.Context, userID, communityID string, d time.Duration) (time.Time, error)
}

// Moderator records sanctions and then enforces them. A sanction counts as applied once its log
// record is stored; enforcement failures do not roll it back.
type Moderator struct {
	log      Log
	counters Counters
	slow     SlowModer
	enforce  Enforcer
	logger   *slog.Logger

	Clock func() time.Time
}

func NewModerator(log Log, counters Counters, slow SlowModer, enforce Enforcer) *Moderator {
	return &Moderator{
		log:      log,
		counters: counters,
		slow:     slow,
		enforce:  enforce,
		logger:   slog.Default().With(slog.String("component", "moderation")),
		Clock:    time.Now,
	}
}

func (m *Moderator) Log() Log { return m.log }

func (m *Moderator) append(ctx context.Context, t Target, action ActionKind, category, reason string) error {
	_, err := m.log.Append(ctx, Record{
		UserID:      t.UserID,
		CommunityID: t.CommunityID,
		Action:      action,
		Category:    category,
		Reason:      reason,
		Automated:   true,
		CreatedAt:   m.Clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("log %s: %w", action, err)
	}
	telemetry.IncVec(telemetry.SanctionsTotal, string(action))
	return nil
}

// RecordDeletion logs a removed message and returns the member's deletion count for the category,
// including this one.
func (m *Moderator) RecordDeletion(ctx context.Context, t Target, category, reason string) (int, error) {
	if err := m.append(ctx, t, ActionMessageDeleted, category, reason); err != nil {
		return 0, err
	}
	return m.log.Count(ctx, t.UserID, t.CommunityID, ActionMessageDeleted, category)
}

// Execute applies d to t.
func (m *Moderator) Execute(ctx context.Context, t Target, d Decision) error {
	if d.None() {
		return nil
	}
	lg := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "moderation"), slog.String("user", t.UserID), slog.String("community", t.CommunityID))
	if d.Ban {
		return m.ban(ctx, lg, t, d)
	}
	if d.SlowMode > 0 {
		if err := m.slowMode(ctx, lg, t, d.SlowMode); err != nil {
			return err
		}
	}
	if d.Warn {
		if err := m.warn(ctx, lg, t, d.Reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *Moderator) ban(ctx context.Context, lg *slog.Logger, t Target, d Decision) error {
	if err := m.append(ctx, t, ActionBan, d.Category, d.Reason); err != nil {
		return err
	}
	if err := m.counters.MarkBanned(ctx, t.UserID, t.CommunityID); err != nil {
		lg.Warn("mark banned failed", slog.Any("err", err))
	}
	if err := m.enforce.Ban(ctx, t, d.Reason); err != nil {
		lg.Error("ban failed", slog.Any("err", err))
		return fmt.Errorf("ban %s: %w", t.UserID, err)
	}
	lg.Info("member banned", slog.String("reason", d.Reason))
	m.modLog(ctx, lg, t.CommunityID, fmt.Sprintf("🔨 **User Banned**\nUser: %s (%s)\nReason: %s\nAction: Automated", t.Mention, t.Username, d.Reason))
	return nil
}

func (m *Moderator) slowMode(ctx context.Context, lg *slog.Logger, t Target, dur time.Duration) error {
	minutes := int(dur / time.Minute)
	if err := m.append(ctx, t, ActionSlowMode, "", fmt.Sprintf("Slow mode applied for %d minutes", minutes)); err != nil {
		return err
	}
	if _, err := m.slow.ApplySlowMode(ctx, t.UserID, t.CommunityID, dur); err != nil {
		return fmt.Errorf("apply slow mode: %w", err)
	}
	if err := m.counters.AddSlowMode(ctx, t.UserID, t.CommunityID); err != nil {
		lg.Warn("slow mode counter failed", slog.Any("err", err))
	}
	lg.Info("slow mode applied", slog.Duration("duration", dur))
	m.modLog(ctx, lg, t.CommunityID, fmt.Sprintf("🐌 **Slow Mode Applied**\nUser: %s\nDuration: %d minutes", t.Mention, minutes))
	return nil
}

func (m *Moderator) warn(ctx context.Context, lg *slog.Logger, t Target, reason string) error {
	if err := m.append(ctx, t, ActionWarning, "", reason); err != nil {
		return err
	}
	total, err := m.counters.AddWarning(ctx, t.UserID, t.CommunityID)
	if err != nil {
		lg.Warn("warning counter failed", slog.Any("err", err))
	}
	if err := m.enforce.Warn(ctx, t, reason, total); err != nil {
		lg.Warn("warning notification failed", slog.Any("err", err))
	}
	lg.Info("member warned", slog.String("reason", reason), slog.Int("total", total))
	m.modLog(ctx, lg, t.CommunityID, fmt.Sprintf("⚠️ **Warning Issued**\nUser: %s\nReason: %s\nTotal Warnings: %d", t.Mention, reason, total))
	return nil
}

func (m *Moderator) modLog(ctx context.Context, lg *slog.Logger, communityID, text string) {
	if err := m.enforce.ModLog(ctx, communityID, text); err != nil {
		lg.Warn("mod log failed", slog.Any("err", err))
	}
}
