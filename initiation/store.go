package initiation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists sessions. Insert must reject a second pending session for the same
// (user, community) atomically with ErrPendingExists. Resolve must only move a pending session
// and report whether a row changed.
type Store interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Pending(ctx context.Context, userID, communityID string) (*Session, error)
	PendingJoinedBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
	PendingUsers(ctx context.Context, communityID string) (map[string]bool, error)
	CountPending(ctx context.Context) (int, error)
	Resolve(ctx context.Context, id string, to Status, path Path, at time.Time) (bool, error)
}

// MemStore is an in-process Store guarded by a single mutex.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemStore() *MemStore { return &MemStore{sessions: make(map[string]*Session)} }

func (m *MemStore) Insert(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == StatusPending {
		for _, cur := range m.sessions {
			if cur.Status == StatusPending && cur.UserID == s.UserID && cur.CommunityID == s.CommunityID {
				return ErrPendingExists
			}
		}
	}
	cp := s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) Pending(_ context.Context, userID, communityID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Session
	for _, s := range m.sessions {
		if s.Status != StatusPending || s.UserID != userID || s.CommunityID != communityID {
			continue
		}
		if best == nil || s.JoinedAt.After(best.JoinedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemStore) PendingJoinedBefore(_ context.Context, cutoff time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Status == StatusPending && s.JoinedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *MemStore) PendingUsers(_ context.Context, communityID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, s := range m.sessions {
		if s.Status == StatusPending && s.CommunityID == communityID {
			out[s.UserID] = true
		}
	}
	return out, nil
}

func (m *MemStore) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) Resolve(_ context.Context, id string, to Status, path Path, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusPending {
		return false, nil
	}
	t := at.UTC()
	s.Status = to
	switch to {
	case StatusCompleted:
		s.ChosenPath = path
		s.CompletedAt = &t
	case StatusExpired:
		s.ExpiredAt = &t
	}
	return true, nil
}
