package spam

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrune(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 30, 0, time.UTC)
	window := []time.Time{now.Add(-20 * time.Second), now.Add(-10 * time.Second), now.Add(-5 * time.Second)}
	got := Prune(window, now, 10*time.Second)
	assert.Equal(t, window[1:], got)
	assert.Len(t, window, 3, "input must not be modified")
	assert.Empty(t, Prune(nil, now, time.Second))
}

func TestScore(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		windowLen int
		content   string
		history   []string
		want      Breakdown
	}{
		{
			name:      "clean",
			windowLen: 1,
			content:   "hello there",
			history:   []string{"hello there"},
			want:      Breakdown{},
		},
		{
			name:      "frequency at threshold",
			windowLen: 5,
			content:   "hi",
			want:      Breakdown{Frequency: 5},
		},
		{
			name:      "below threshold",
			windowLen: 4,
			content:   "hi",
			want:      Breakdown{},
		},
		{
			name:      "repetition ignores case and spacing",
			windowLen: 3,
			content:   "BUY NOW",
			history:   []string{"BUY NOW", " buy now", "Buy Now "},
			want:      Breakdown{Repetition: 10},
		},
		{
			name:      "repetition needs three",
			windowLen: 2,
			content:   "same",
			history:   []string{"same", "same"},
			want:      Breakdown{},
		},
		{
			name:      "repetition broken by a different message",
			windowLen: 1,
			content:   "same",
			history:   []string{"same", "same", "other", "same"},
			want:      Breakdown{},
		},
		{
			name:      "repetition only looks at last five",
			windowLen: 1,
			content:   "same",
			history:   []string{"same", "same", "same", "same", "same", "different"},
			want:      Breakdown{Repetition: 10},
		},
		{
			name:      "two links",
			windowLen: 1,
			content:   "see http://a.example and HTTPS://b.example",
			want:      Breakdown{Links: 6, LinkCount: 2},
		},
		{
			name:      "one link",
			windowLen: 1,
			content:   "see https://a.example",
			want:      Breakdown{LinkCount: 1},
		},
		{
			name:      "gibberish",
			windowLen: 1,
			content:   "!!!???###$$$ab",
			want:      Breakdown{Gibberish: 5},
		},
		{
			name:      "short symbols are not gibberish",
			windowLen: 1,
			content:   "?!?!?!",
			want:      Breakdown{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(cfg, tt.windowLen, tt.content, tt.history)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreLength(t *testing.T) {
	cfg := DefaultConfig()
	b := Score(cfg, 1, strings.Repeat("word ", 41), nil)
	assert.Equal(t, 3, b.Length)
	assert.Equal(t, 3, b.Total())

	b = Score(cfg, 1, strings.Repeat("a", 200), nil)
	assert.Equal(t, 0, b.Length)
}

func TestScoreAdditive(t *testing.T) {
	cfg := DefaultConfig()
	msg := "http://x.example http://y.example http://z.example"
	b := Score(cfg, 6, msg, []string{msg, msg, msg})
	assert.Equal(t, 5+10+9, b.Total())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("Hello"), Fingerprint("  hello "))
	assert.NotEqual(t, Fingerprint("hello"), Fingerprint("hell0"))
}

func TestRepetitionComparesNormalizedText(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, RepetitionPenalty, Score(cfg, 1, "Buy", []string{"buy ", "BUY", " Buy"}).Repetition)
	assert.Zero(t, Score(cfg, 1, "buy", []string{"buy", "buy", "bye"}).Repetition)
	assert.Zero(t, Score(cfg, 1, "buy", []string{"buy", "buy"}).Repetition)
}

func TestSuspicion(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		acct      Account
		hist      HistoryStats
		wantTotal int
		automated bool
	}{
		{"established", Account{Username: "nightowl", CreatedAt: now.AddDate(-2, 0, 0)}, HistoryStats{Total: 10, WithLinks: 1}, 0, false},
		{"young", Account{Username: "nightowl", CreatedAt: now.Add(-24 * time.Hour)}, HistoryStats{}, 5, false},
		{"young link spammer", Account{Username: "nightowl", CreatedAt: now.Add(-time.Hour)}, HistoryStats{Total: 4, WithLinks: 3}, 10, true},
		{"link ratio exactly half", Account{Username: "nightowl", CreatedAt: now.AddDate(-1, 0, 0)}, HistoryStats{Total: 4, WithLinks: 2}, 0, false},
		{"everything", Account{Username: "user48213", CreatedAt: now.Add(-time.Hour), DefaultAvatar: true}, HistoryStats{Total: 1, WithLinks: 1}, 15, true},
		{"unknown age", Account{Username: "12345"}, HistoryStats{}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Suspicion(cfg, tt.acct, tt.hist, now)
			assert.Equal(t, tt.wantTotal, r.Total())
			assert.Equal(t, tt.automated, r.LikelyAutomated())
		})
	}
}

func TestSuspiciousUsername(t *testing.T) {
	assert.True(t, SuspiciousUsername("bot1234"))
	assert.True(t, SuspiciousUsername("___"))
	assert.True(t, SuspiciousUsername(strings.Repeat("a", 26)))
	assert.False(t, SuspiciousUsername("silent_witness_99"))
}
