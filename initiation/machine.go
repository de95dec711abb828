package initiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/cultbot/telemetry"
)

// Prompter (re-)sends the onboarding prompt to a member and returns where the ritual message lives.
// Withdraw removes a prompt that lost the race to an existing session.
type Prompter interface {
	Prompt(ctx context.Context, communityID string, m Member) (channelID, messageID string, err error)
	Withdraw(ctx context.Context, channelID, messageID string) error
}

// Ejector removes a member whose session timed out. A member that already left is not an error.
type Ejector interface {
	Eject(ctx context.Context, s Session) error
}

// Machine drives session transitions on top of a Store.
type Machine struct {
	store Store
	log   *slog.Logger

	// Clock returns the current time; tests replace it.
	Clock func() time.Time
}

func NewMachine(store Store) *Machine {
	return &Machine{
		store: store,
		log:   slog.Default().With(slog.String("component", "initiation")),
		Clock: time.Now,
	}
}

func (m *Machine) now() time.Time { return m.Clock().UTC() }

// Store exposes the underlying store for read-only callers (status endpoints, CLI).
func (m *Machine) Store() Store { return m.store }

// CreateSession opens a pending session for the member. It fails with ErrPendingExists when one
// is already open; the store re-checks atomically so concurrent joins cannot both succeed.
func (m *Machine) CreateSession(ctx context.Context, userID, communityID, channelID, messageID string) (*Session, error) {
	cur, err := m.store.Pending(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, ErrPendingExists
	}
	s := Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		CommunityID:     communityID,
		RitualChannelID: channelID,
		RitualMessageID: messageID,
		JoinedAt:        m.now(),
		Status:          StatusPending,
	}
	if err := m.store.Insert(ctx, s); err != nil {
		return nil, err
	}
	telemetry.Inc(telemetry.SessionsCreated)
	m.log.Info("session created", slog.String("session", s.ID), slog.String("user", userID), slog.String("community", communityID))
	return &s, nil
}

// GetPendingSession returns the member's open session, or nil.
func (m *Machine) GetPendingSession(ctx context.Context, userID, communityID string) (*Session, error) {
	return m.store.Pending(ctx, userID, communityID)
}

// GetExpiredSessions lists pending sessions that joined more than timeout ago. It does not mutate.
func (m *Machine) GetExpiredSessions(ctx context.Context, timeout time.Duration) ([]Session, error) {
	return m.store.PendingJoinedBefore(ctx, m.now().Add(-timeout))
}

// CompleteSession resolves a pending session with the chosen path. Missing or already resolved
// sessions are left untouched.
func (m *Machine) CompleteSession(ctx context.Context, id string, path Path) error {
	if !path.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	changed, err := m.store.Resolve(ctx, id, StatusCompleted, path, m.now())
	if err != nil {
		return err
	}
	if changed {
		telemetry.Inc(telemetry.SessionsCompleted)
		m.log.Info("session completed", slog.String("session", id), slog.String("path", string(path)))
	}
	return nil
}

// ExpireSession resolves a pending session as expired. Missing or already resolved sessions are
// left untouched.
func (m *Machine) ExpireSession(ctx context.Context, id string) error {
	changed, err := m.store.Resolve(ctx, id, StatusExpired, "", m.now())
	if err != nil {
		return err
	}
	if changed {
		telemetry.Inc(telemetry.SessionsExpired)
		m.log.Info("session expired", slog.String("session", id))
	}
	return nil
}

// StartSession prompts mem and opens a pending session bound to the posted ritual message. It fails
// with ErrPendingExists without prompting when a session is already open, and withdraws the prompt
// when a concurrent session wins between the prompt and the insert.
func (m *Machine) StartSession(ctx context.Context, communityID string, mem Member, p Prompter) (*Session, error) {
	cur, err := m.store.Pending(ctx, mem.UserID, communityID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, ErrPendingExists
	}
	ch, msg, err := p.Prompt(ctx, communityID, mem)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	s, err := m.CreateSession(ctx, mem.UserID, communityID, ch, msg)
	if err != nil {
		if errors.Is(err, ErrPendingExists) {
			if werr := p.Withdraw(ctx, ch, msg); werr != nil {
				m.log.Warn("withdraw duplicate prompt failed", slog.String("user", mem.UserID), slog.String("message", msg), slog.Any("err", werr))
			}
		}
		return nil, err
	}
	return s, nil
}

// Reconcile returns the members that lack a pending session and should be prompted again.
// Bots are skipped, as are members who joined more than maxJoinAge ago (when maxJoinAge > 0 and the
// join time is known).
func Reconcile(members []Member, pending map[string]bool, maxJoinAge time.Duration, now time.Time) []Member {
	var out []Member
	for _, mem := range members {
		if mem.Bot || pending[mem.UserID] {
			continue
		}
		if maxJoinAge > 0 && !mem.JoinedAt.IsZero() && now.Sub(mem.JoinedAt) > maxJoinAge {
			continue
		}
		out = append(out, mem)
	}
	return out
}

// ReconcileMembership recreates sessions for members that were left without one (e.g. the bot was
// offline when they joined). It returns the number of sessions recreated; prompt failures are
// logged and skipped.
func (m *Machine) ReconcileMembership(ctx context.Context, communityID string, members []Member, maxJoinAge time.Duration, p Prompter) (int, error) {
	pending, err := m.store.PendingUsers(ctx, communityID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, mem := range Reconcile(members, pending, maxJoinAge, m.now()) {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := m.StartSession(ctx, communityID, mem, p); err != nil {
			if !errors.Is(err, ErrPendingExists) {
				m.log.Warn("recovery session failed", slog.String("user", mem.UserID), slog.String("community", communityID), slog.Any("err", err))
			}
			continue
		}
		telemetry.Inc(telemetry.SessionsRecovered)
		n++
	}
	if n > 0 {
		m.log.Info("recovered initiation sessions", slog.String("community", communityID), slog.Int("count", n))
	}
	return n, nil
}

// SweepExpired ejects members whose session timed out and marks each session Expired only after
// the ejection succeeded. A failed ejection leaves the session pending for the next sweep.
func (m *Machine) SweepExpired(ctx context.Context, timeout time.Duration, e Ejector) (int, error) {
	expired, err := m.GetExpiredSessions(ctx, timeout)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range expired {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if err := e.Eject(ctx, s); err != nil {
			m.log.Warn("eject failed; will retry", slog.String("session", s.ID), slog.String("user", s.UserID), slog.Any("err", err))
			continue
		}
		if err := m.ExpireSession(ctx, s.ID); err != nil {
			m.log.Error("expire session failed", slog.String("session", s.ID), slog.Any("err", err))
			continue
		}
		n++
	}
	return n, nil
}
