package initiation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/cultbot/db"
)

// PGStore keeps sessions in the initiation_sessions table. The partial unique index
// uq_initiation_pending enforces the single pending session per member and community.
type PGStore struct{ DB *sql.DB }

const sessionColumns = `id, user_id, community_id, ritual_channel_id, ritual_message_id, joined_at, status, COALESCE(chosen_path, ''), completed_at, expired_at`

func (p *PGStore) Insert(ctx context.Context, s Session) error {
	var path sql.NullString
	if s.ChosenPath != "" {
		path = sql.NullString{String: string(s.ChosenPath), Valid: true}
	}
	_, err := p.DB.ExecContext(ctx, `INSERT INTO initiation_sessions
		(id, user_id, community_id, ritual_channel_id, ritual_message_id, joined_at, status, chosen_path, completed_at, expired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.UserID, s.CommunityID, s.RitualChannelID, s.RitualMessageID, s.JoinedAt.UTC(), string(s.Status),
		path, db.NullTime(s.CompletedAt), db.NullTime(s.ExpiredAt))
	if db.IsUniqueViolation(err) {
		return ErrPendingExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		s                  Session
		status, path       string
		completed, expired sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.CommunityID, &s.RitualChannelID, &s.RitualMessageID, &s.JoinedAt, &status, &path, &completed, &expired); err != nil {
		return nil, err
	}
	s.JoinedAt = s.JoinedAt.UTC()
	s.Status = Status(status)
	s.ChosenPath = Path(path)
	s.CompletedAt = db.TimePtr(completed)
	s.ExpiredAt = db.TimePtr(expired)
	return &s, nil
}

func (p *PGStore) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(p.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM initiation_sessions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (p *PGStore) Pending(ctx context.Context, userID, communityID string) (*Session, error) {
	s, err := scanSession(p.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM initiation_sessions
		WHERE user_id=$1 AND community_id=$2 AND status='Pending' ORDER BY joined_at DESC LIMIT 1`, userID, communityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending session: %w", err)
	}
	return s, nil
}

func (p *PGStore) PendingJoinedBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM initiation_sessions
		WHERE status='Pending' AND joined_at < $1 ORDER BY joined_at`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PGStore) PendingUsers(ctx context.Context, communityID string) (map[string]bool, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT user_id FROM initiation_sessions WHERE community_id=$1 AND status='Pending'`, communityID)
	if err != nil {
		return nil, fmt.Errorf("query pending users: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (p *PGStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM initiation_sessions WHERE status='Pending'`).Scan(&n)
	return n, err
}

func (p *PGStore) Resolve(ctx context.Context, id string, to Status, path Path, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	switch to {
	case StatusCompleted:
		res, err = p.DB.ExecContext(ctx, `UPDATE initiation_sessions SET status='Completed', chosen_path=$2, completed_at=$3
			WHERE id=$1 AND status='Pending'`, id, string(path), at.UTC())
	case StatusExpired:
		res, err = p.DB.ExecContext(ctx, `UPDATE initiation_sessions SET status='Expired', expired_at=$2
			WHERE id=$1 AND status='Pending'`, id, at.UTC())
	default:
		return false, fmt.Errorf("resolve session: unsupported status %q", to)
	}
	if err != nil {
		return false, fmt.Errorf("resolve session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
