package spam

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onnwee/cultbot/db"
)

// PGStore keeps records in spam_trackers, locking the row for the duration of Update.
type PGStore struct{ DB *sql.DB }

func (p *PGStore) Get(ctx context.Context, userID, communityID string) (Record, bool, error) {
	r, err := scanRecord(p.DB.QueryRowContext(ctx, `SELECT recent_message_times, score, last_check, slow_mode_active, slow_mode_until
		FROM spam_trackers WHERE user_id=$1 AND community_id=$2`, userID, communityID))
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get spam tracker: %w", err)
	}
	return r, true, nil
}

func scanRecord(row *sql.Row) (Record, error) {
	var (
		r         Record
		raw       []byte
		lastCheck sql.NullTime
		until     sql.NullTime
	)
	if err := row.Scan(&raw, &r.Score, &lastCheck, &r.SlowModeActive, &until); err != nil {
		return Record{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Window); err != nil {
			return Record{}, fmt.Errorf("decode window: %w", err)
		}
	}
	if lastCheck.Valid {
		r.LastCheck = lastCheck.Time.UTC()
	}
	r.SlowModeUntil = db.TimePtr(until)
	return r, nil
}

func (p *PGStore) Update(ctx context.Context, userID, communityID string, fn func(*Record) error) (Record, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO spam_trackers (user_id, community_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, communityID); err != nil {
		return Record{}, fmt.Errorf("ensure spam tracker: %w", err)
	}
	r, err := scanRecord(tx.QueryRowContext(ctx, `SELECT recent_message_times, score, last_check, slow_mode_active, slow_mode_until
		FROM spam_trackers WHERE user_id=$1 AND community_id=$2 FOR UPDATE`, userID, communityID))
	if err != nil {
		return Record{}, fmt.Errorf("lock spam tracker: %w", err)
	}
	if err := fn(&r); err != nil {
		return Record{}, err
	}
	window := r.Window
	if window == nil {
		window = []time.Time{}
	}
	raw, err := json.Marshal(window)
	if err != nil {
		return Record{}, err
	}
	var lastCheck sql.NullTime
	if !r.LastCheck.IsZero() {
		lastCheck = sql.NullTime{Time: r.LastCheck.UTC(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE spam_trackers SET recent_message_times=$3, score=$4, last_check=$5, slow_mode_active=$6, slow_mode_until=$7
		WHERE user_id=$1 AND community_id=$2`, userID, communityID, raw, r.Score, lastCheck, r.SlowModeActive, db.NullTime(r.SlowModeUntil)); err != nil {
		return Record{}, fmt.Errorf("update spam tracker: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit spam tracker: %w", err)
	}
	return r, nil
}
