package livestream

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/onnwee/cultbot/db"
)

// Store persists one Status per platform. Get returns a zero status for an unknown platform.
type Store interface {
	Get(ctx context.Context, p Platform) (Status, error)
	Save(ctx context.Context, s Status) error
}

type MemStore struct {
	mu sync.Mutex
	m  map[Platform]Status
}

func NewMemStore() *MemStore { return &MemStore{m: make(map[Platform]Status)} }

func (s *MemStore) Get(_ context.Context, p Platform) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[p]
	if !ok {
		return Status{Platform: p}, nil
	}
	return st, nil
}

func (s *MemStore) Save(_ context.Context, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[st.Platform] = st
	return nil
}

// PGStore keeps statuses in live_stream_status.
type PGStore struct{ DB *sql.DB }

func (s *PGStore) Get(ctx context.Context, p Platform) (Status, error) {
	st := Status{Platform: p}
	var started, checked sql.NullTime
	err := s.DB.QueryRowContext(ctx, `SELECT current_video_id, is_live, live_started_at, announcement_sent, last_checked_at
		FROM live_stream_status WHERE platform=$1`, string(p)).Scan(&st.CurrentVideoID, &st.IsLive, &started, &st.AnnouncementSent, &checked)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("get live status: %w", err)
	}
	st.LiveStartedAt = db.TimePtr(started)
	st.LastCheckedAt = db.TimePtr(checked)
	return st, nil
}

func (s *PGStore) Save(ctx context.Context, st Status) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO live_stream_status (platform, current_video_id, is_live, live_started_at, announcement_sent, last_checked_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (platform) DO UPDATE SET current_video_id=EXCLUDED.current_video_id, is_live=EXCLUDED.is_live,
			live_started_at=EXCLUDED.live_started_at, announcement_sent=EXCLUDED.announcement_sent, last_checked_at=EXCLUDED.last_checked_at`,
		string(st.Platform), st.CurrentVideoID, st.IsLive, db.NullTime(st.LiveStartedAt), st.AnnouncementSent, db.NullTime(st.LastCheckedAt))
	if err != nil {
		return fmt.Errorf("save live status: %w", err)
	}
	return nil
}
