// Package moderation decides and applies sanctions. Policy maps spam scores and repeat profanity
// offenses to decisions, Moderator records and enforces them, and Pipeline runs each chat message
// through slow mode, profanity and spam checks.
package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// ActionKind is the type of a logged moderation action.
type ActionKind string

const (
	ActionWarning        ActionKind = "Warning"
	ActionSlowMode       ActionKind = "SlowMode"
	ActionBan            ActionKind = "Ban"
	ActionMessageDeleted ActionKind = "MessageDeleted"
)

// Record is one append-only moderation log entry.
type Record struct {
	ID          int64
	UserID      string
	CommunityID string
	Action      ActionKind
	Category    string
	Reason      string
	Automated   bool
	CreatedAt   time.Time
}

// Log stores moderation records. Count matches on action and, when non-empty, category.
type Log interface {
	Append(ctx context.Context, r Record) (Record, error)
	Count(ctx context.Context, userID, communityID string, action ActionKind, category string) (int, error)
	Recent(ctx context.Context, userID, communityID string, limit int) ([]Record, error)
}

// MemLog is an in-process Log.
type MemLog struct {
	mu      sync.Mutex
	records []Record
}

func NewMemLog() *MemLog { return &MemLog{} }

func (m *MemLog) Append(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.records) + 1)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, r)
	return r, nil
}

func (m *MemLog) Count(_ context.Context, userID, communityID string, action ActionKind, category string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && r.CommunityID == communityID && r.Action == action && (category == "" || r.Category == category) {
			n++
		}
	}
	return n, nil
}

func (m *MemLog) Recent(_ context.Context, userID, communityID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r := m.records[i]; r.UserID == userID && r.CommunityID == communityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// PGLog stores records in moderation_log.
type PGLog struct{ DB *sql.DB }

func (p *PGLog) Append(ctx context.Context, r Record) (Record, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO moderation_log (user_id, community_id, action, category, reason, automated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		r.UserID, r.CommunityID, string(r.Action), r.Category, r.Reason, r.Automated, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return Record{}, fmt.Errorf("append moderation log: %w", err)
	}
	return r, nil
}

func (p *PGLog) Count(ctx context.Context, userID, communityID string, action ActionKind, category string) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderation_log
		WHERE user_id=$1 AND community_id=$2 AND action=$3 AND ($4 = '' OR category=$4)`,
		userID, communityID, string(action), category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count moderation log: %w", err)
	}
	return n, nil
}

func (p *PGLog) Recent(ctx context.Context, userID, communityID string, limit int) ([]Record, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, user_id, community_id, action, category, reason, automated, created_at
		FROM moderation_log WHERE user_id=$1 AND community_id=$2 ORDER BY id DESC LIMIT $3`, userID, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent moderation log: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			r      Record
			action string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.CommunityID, &action, &r.Category, &r.Reason, &r.Automated, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Action = ActionKind(action)
		out = append(out, r)
	}
	return out, rows.Err()
}
