package spam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/cultbot/testutil"
)

func newTestTracker(store Store) (*Tracker, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultConfig(), store)
	tr.Clock = func() time.Time { return now }
	return tr, &now
}

func TestEvaluateMessageFrequency(t *testing.T) {
	tr, now := newTestTracker(NewMemStore())
	ctx := context.Background()

	var ev Evaluation
	var err error
	for i := 0; i < 5; i++ {
		ev, err = tr.EvaluateMessage(ctx, Message{UserID: "u", CommunityID: "c", Content: fmt.Sprintf("msg %d", i), At: now.Add(time.Duration(i) * time.Second)}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, ev.WindowLen)
	assert.Equal(t, 5, ev.Score)

	// Twenty seconds later the window has drained.
	ev, err = tr.EvaluateMessage(ctx, Message{UserID: "u", CommunityID: "c", Content: "calm", At: now.Add(25 * time.Second)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.WindowLen)
	assert.Equal(t, 0, ev.Score)

	rec, ok, err := tr.Record(ctx, "u", "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Score, "score is replaced, not accumulated")
}

func TestEvaluateMessageKeepsWindowMonotone(t *testing.T) {
	tr, now := newTestTracker(NewMemStore())
	ctx := context.Background()
	_, err := tr.EvaluateMessage(ctx, Message{UserID: "u", CommunityID: "c", Content: "a", At: now.Add(2 * time.Second)}, nil)
	require.NoError(t, err)
	_, err = tr.EvaluateMessage(ctx, Message{UserID: "u", CommunityID: "c", Content: "b", At: now.Add(time.Second)}, nil)
	require.NoError(t, err)
	rec, _, err := tr.Record(ctx, "u", "c")
	require.NoError(t, err)
	require.Len(t, rec.Window, 2)
	assert.False(t, rec.Window[1].Before(rec.Window[0]))
}

func TestSlowModeLifecycle(t *testing.T) {
	store := NewMemStore()
	tr, now := newTestTracker(store)
	ctx := context.Background()

	active, err := tr.IsInSlowMode(ctx, "u", "c")
	require.NoError(t, err)
	assert.False(t, active)

	until, err := tr.ApplySlowMode(ctx, "u", "c", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), until)

	active, err = tr.IsInSlowMode(ctx, "u", "c")
	require.NoError(t, err)
	assert.True(t, active)

	*now = now.Add(6 * time.Minute)
	active, err = tr.IsInSlowMode(ctx, "u", "c")
	require.NoError(t, err)
	assert.False(t, active)

	rec, _, err := store.Get(ctx, "u", "c")
	require.NoError(t, err)
	assert.False(t, rec.SlowModeActive)
	assert.Nil(t, rec.SlowModeUntil)
}

func TestMemStoreUpdateConcurrent(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "u", "c", func(r *Record) error {
				r.Score++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	rec, ok, err := store.Get(ctx, "u", "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50, rec.Score)
}

func TestMemStoreUpdateErrorDoesNotCreate(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.Update(ctx, "u", "c", func(r *Record) error { return boom })
	assert.ErrorIs(t, err, boom)
	_, ok, err := store.Get(ctx, "u", "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssessAccountCaches(t *testing.T) {
	tr, now := newTestTracker(NewMemStore())
	young := Account{Username: "fresh", CreatedAt: now.Add(-time.Hour), DefaultAvatar: true}
	r := tr.AssessAccount("u", "c", young, HistoryStats{Total: 2, WithLinks: 2})
	assert.True(t, r.LikelyAutomated())

	// A cached report is returned even if the inputs changed.
	r2 := tr.AssessAccount("u", "c", Account{Username: "fresh"}, HistoryStats{})
	assert.Equal(t, r, r2)
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	user := fmt.Sprintf("u-%d", time.Now().UnixNano())
	_, ok, err := store.Get(ctx, user, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := at.Add(time.Minute)
	_, err = store.Update(ctx, user, "c", func(r *Record) error {
		r.Window = append(r.Window, at)
		r.Score = 7
		r.LastCheck = at
		r.SlowModeActive = true
		r.SlowModeUntil = &until
		return nil
	})
	require.NoError(t, err)

	rec, ok, err := store.Get(ctx, user, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, rec.Score)
	require.Len(t, rec.Window, 1)
	assert.True(t, rec.Window[0].Equal(at))
	require.NotNil(t, rec.SlowModeUntil)
	assert.True(t, rec.SlowModeUntil.Equal(until))
}

func TestPGStore(t *testing.T) {
	database := testutil.SetupTestDB(t)
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM spam_trackers WHERE community_id='c' AND user_id LIKE 'u-%'`)
	})
	runStoreContract(t, &PGStore{DB: database})
}

func TestRedisStore(t *testing.T) {
	url := testutil.RedisURL(t)
	store, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Client.Close() })
	runStoreContract(t, store)
}
