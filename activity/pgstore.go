package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PGStore writes to user_messages, user_activity and game_activity.
type PGStore struct{ DB *sql.DB }

const upsertActivity = `INSERT INTO user_activity (user_id, community_id, username, first_seen_at, last_seen_at)
	VALUES ($1,$2,$3,$4,$4)
	ON CONFLICT (user_id, community_id) DO UPDATE SET
		username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE user_activity.username END,
		last_seen_at = GREATEST(user_activity.last_seen_at, EXCLUDED.last_seen_at)`

func (p *PGStore) touch(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, userID, username, communityID string, at time.Time) error {
	if _, err := q.ExecContext(ctx, upsertActivity, userID, communityID, username, at.UTC()); err != nil {
		return fmt.Errorf("upsert user activity: %w", err)
	}
	return nil
}

func (p *PGStore) RecordMessage(ctx context.Context, m Message, fingerprint uint32) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO user_messages (message_id, user_id, community_id, channel_id, content, content_hash, has_link, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.MessageID, m.UserID, m.CommunityID, m.ChannelID, m.Content, int64(fingerprint), HasLink(m.Content), m.At.UTC()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if err := p.touch(ctx, tx, m.UserID, m.Username, m.CommunityID, m.At); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_activity SET message_count = message_count + 1 WHERE user_id=$1 AND community_id=$2`, m.UserID, m.CommunityID); err != nil {
		return fmt.Errorf("bump message count: %w", err)
	}
	return tx.Commit()
}

func (p *PGStore) RecentContents(ctx context.Context, userID, communityID string, n int) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT content FROM user_messages WHERE user_id=$1 AND community_id=$2
		ORDER BY created_at DESC, id DESC LIMIT $3`, userID, communityID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PGStore) ByFingerprint(ctx context.Context, communityID string, fingerprint uint32, since time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := p.DB.QueryContext(ctx, `SELECT message_id, user_id, channel_id, content, created_at FROM user_messages
		WHERE community_id=$1 AND content_hash=$2 AND created_at >= $3
		ORDER BY created_at DESC, id DESC LIMIT $4`, communityID, int64(fingerprint), since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("messages by fingerprint: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m := Message{CommunityID: communityID}
		if err := rows.Scan(&m.MessageID, &m.UserID, &m.ChannelID, &m.Content, &m.At); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PGStore) LinkStats(ctx context.Context, userID, communityID string) (int, int, error) {
	var total, links int
	err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE has_link) FROM user_messages
		WHERE user_id=$1 AND community_id=$2`, userID, communityID).Scan(&total, &links)
	if err != nil {
		return 0, 0, fmt.Errorf("link stats: %w", err)
	}
	return total, links, nil
}

func (p *PGStore) FlagMessage(ctx context.Context, messageID, reason string) error {
	if _, err := p.DB.ExecContext(ctx, `UPDATE user_messages SET flagged=TRUE, deleted=TRUE, flag_reason=$2 WHERE message_id=$1`, messageID, reason); err != nil {
		return fmt.Errorf("flag message: %w", err)
	}
	return nil
}

func (p *PGStore) bump(ctx context.Context, column, userID, communityID string, at time.Time) (int, error) {
	if err := p.touch(ctx, p.DB, userID, "", communityID, at); err != nil {
		return 0, err
	}
	var n int
	// column is one of a fixed set of counter names.
	err := p.DB.QueryRowContext(ctx, `UPDATE user_activity SET `+column+` = `+column+` + 1
		WHERE user_id=$1 AND community_id=$2 RETURNING `+column, userID, communityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bump %s: %w", column, err)
	}
	return n, nil
}

func (p *PGStore) RecordJoin(ctx context.Context, userID, username, communityID string, at time.Time) error {
	if err := p.touch(ctx, p.DB, userID, username, communityID, at); err != nil {
		return err
	}
	_, err := p.bump(ctx, "join_count", userID, communityID, at)
	return err
}

func (p *PGStore) RecordLeave(ctx context.Context, userID, communityID string, at time.Time) error {
	_, err := p.bump(ctx, "leave_count", userID, communityID, at)
	return err
}

func (p *PGStore) AddWarning(ctx context.Context, userID, communityID string) (int, error) {
	return p.bump(ctx, "warning_count", userID, communityID, time.Now())
}

func (p *PGStore) AddSlowMode(ctx context.Context, userID, communityID string) error {
	_, err := p.bump(ctx, "slow_mode_count", userID, communityID, time.Now())
	return err
}

func (p *PGStore) MarkBanned(ctx context.Context, userID, communityID string) error {
	if err := p.touch(ctx, p.DB, userID, "", communityID, time.Now()); err != nil {
		return err
	}
	if _, err := p.DB.ExecContext(ctx, `UPDATE user_activity SET is_banned=TRUE WHERE user_id=$1 AND community_id=$2`, userID, communityID); err != nil {
		return fmt.Errorf("mark banned: %w", err)
	}
	return nil
}

func (p *PGStore) SetCurrentGame(ctx context.Context, userID, communityID, game string, at time.Time) (bool, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		openID   int64
		openGame string
	)
	err = tx.QueryRowContext(ctx, `SELECT id, game FROM game_activity
		WHERE user_id=$1 AND community_id=$2 AND source=$3 AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1 FOR UPDATE`, userID, communityID, SourcePresence).Scan(&openID, &openGame)
	hasOpen := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("open game: %w", err)
	}
	if (hasOpen && openGame == game) || (!hasOpen && game == "") {
		return false, nil
	}
	if hasOpen {
		if _, err := tx.ExecContext(ctx, `UPDATE game_activity SET ended_at=$2 WHERE id=$1`, openID, at.UTC()); err != nil {
			return false, fmt.Errorf("end game: %w", err)
		}
	}
	if game != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO game_activity (user_id, community_id, game, source, started_at) VALUES ($1,$2,$3,$4,$5)`,
			userID, communityID, game, SourcePresence, at.UTC()); err != nil {
			return false, fmt.Errorf("start game: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit game: %w", err)
	}
	return true, nil
}

func (p *PGStore) RecordMention(ctx context.Context, userID, communityID, game string, at time.Time) error {
	if _, err := p.DB.ExecContext(ctx, `INSERT INTO game_activity (user_id, community_id, game, source, started_at, ended_at) VALUES ($1,$2,$3,$4,$5,$5)`,
		userID, communityID, game, SourceMention, at.UTC()); err != nil {
		return fmt.Errorf("record mention: %w", err)
	}
	return nil
}

func (p *PGStore) Stats(ctx context.Context, userID, communityID string) (Stats, error) {
	s := Stats{UserID: userID, CommunityID: communityID}
	err := p.DB.QueryRowContext(ctx, `SELECT username, message_count, warning_count, slow_mode_count, join_count, leave_count,
		is_banned, first_seen_at, last_seen_at FROM user_activity WHERE user_id=$1 AND community_id=$2`, userID, communityID).
		Scan(&s.Username, &s.Messages, &s.Warnings, &s.SlowModes, &s.Joins, &s.Leaves, &s.Banned, &s.FirstSeen, &s.LastSeen)
	if err != nil && err != sql.ErrNoRows {
		return Stats{}, fmt.Errorf("user activity: %w", err)
	}
	var current sql.NullString
	if err := p.DB.QueryRowContext(ctx, `SELECT game FROM game_activity WHERE user_id=$1 AND community_id=$2 AND source=$3 AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, userID, communityID, SourcePresence).Scan(&current); err != nil && err != sql.ErrNoRows {
		return Stats{}, fmt.Errorf("current game: %w", err)
	}
	s.CurrentGame = current.String

	rows, err := p.DB.QueryContext(ctx, `SELECT game, COUNT(*) FROM game_activity WHERE user_id=$1 AND community_id=$2
		GROUP BY game ORDER BY COUNT(*) DESC, game LIMIT 5`, userID, communityID)
	if err != nil {
		return Stats{}, fmt.Errorf("top games: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g GameCount
		if err := rows.Scan(&g.Game, &g.Count); err != nil {
			return Stats{}, err
		}
		s.TopGames = append(s.TopGames, g)
	}
	return s, rows.Err()
}
