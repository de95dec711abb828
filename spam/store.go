package spam

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Record is the persisted tracker state for one member in one community.
type Record struct {
	Window         []time.Time `json:"window"`
	Score          int         `json:"score"`
	LastCheck      time.Time   `json:"last_check"`
	SlowModeActive bool        `json:"slow_mode_active"`
	SlowModeUntil  *time.Time  `json:"slow_mode_until,omitempty"`
}

func (r Record) clone() Record {
	r.Window = append([]time.Time(nil), r.Window...)
	if r.SlowModeUntil != nil {
		t := *r.SlowModeUntil
		r.SlowModeUntil = &t
	}
	return r
}

// Store persists tracker records. Update must apply fn as an atomic read-modify-write for the key,
// starting from the zero Record when none exists; the record is not written if fn fails.
type Store interface {
	Get(ctx context.Context, userID, communityID string) (Record, bool, error)
	Update(ctx context.Context, userID, communityID string, fn func(*Record) error) (Record, error)
}

// MemStore keeps records in a concurrent map; Compute serializes writers per key.
type MemStore struct {
	m *xsync.MapOf[string, Record]
}

func NewMemStore() *MemStore { return &MemStore{m: xsync.NewMapOf[string, Record]()} }

func memKey(userID, communityID string) string { return communityID + "\x00" + userID }

func (s *MemStore) Get(_ context.Context, userID, communityID string) (Record, bool, error) {
	r, ok := s.m.Load(memKey(userID, communityID))
	if !ok {
		return Record{}, false, nil
	}
	return r.clone(), true, nil
}

func (s *MemStore) Update(_ context.Context, userID, communityID string, fn func(*Record) error) (Record, error) {
	var (
		out  Record
		ferr error
	)
	s.m.Compute(memKey(userID, communityID), func(old Record, loaded bool) (Record, bool) {
		r := old.clone()
		if err := fn(&r); err != nil {
			ferr = err
			return old, !loaded
		}
		out = r.clone()
		return r, false
	})
	return out, ferr
}
