package activity

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct{ user, community string }

type memGame struct {
	memKey
	game    string
	source  string
	started time.Time
	ended   *time.Time
}

// MemStore is an in-process Store for tests and single-node runs.
type MemStore struct {
	mu       sync.Mutex
	messages []storedMessage
	counters map[memKey]*Stats
	games    []memGame
}

type storedMessage struct {
	Message
	fingerprint uint32
	hasLink     bool
	flagged     string
}

func NewMemStore() *MemStore { return &MemStore{counters: make(map[memKey]*Stats)} }

func (m *MemStore) counter(userID, communityID string, at time.Time) *Stats {
	k := memKey{userID, communityID}
	s, ok := m.counters[k]
	if !ok {
		s = &Stats{UserID: userID, CommunityID: communityID, FirstSeen: at, LastSeen: at}
		m.counters[k] = s
	}
	if at.After(s.LastSeen) {
		s.LastSeen = at
	}
	return s
}

func (m *MemStore) RecordMessage(_ context.Context, msg Message, fingerprint uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, storedMessage{Message: msg, fingerprint: fingerprint, hasLink: HasLink(msg.Content)})
	s := m.counter(msg.UserID, msg.CommunityID, msg.At)
	s.Messages++
	if msg.Username != "" {
		s.Username = msg.Username
	}
	return nil
}

func (m *MemStore) RecentContents(_ context.Context, userID, communityID string, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for i := len(m.messages) - 1; i >= 0 && len(out) < n; i-- {
		if msg := m.messages[i]; msg.UserID == userID && msg.CommunityID == communityID {
			out = append(out, msg.Content)
		}
	}
	return out, nil
}

func (m *MemStore) ByFingerprint(_ context.Context, communityID string, fingerprint uint32, since time.Time, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for i := len(m.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		msg := m.messages[i]
		if msg.CommunityID == communityID && msg.fingerprint == fingerprint && !msg.At.Before(since) {
			out = append(out, msg.Message)
		}
	}
	return out, nil
}

func (m *MemStore) LinkStats(_ context.Context, userID, communityID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, links int
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.CommunityID == communityID {
			total++
			if msg.hasLink {
				links++
			}
		}
	}
	return total, links, nil
}

func (m *MemStore) FlagMessage(_ context.Context, messageID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].MessageID == messageID {
			m.messages[i].flagged = reason
		}
	}
	return nil
}

// Flagged returns the flag reason recorded for a message.
func (m *MemStore) Flagged(messageID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.MessageID == messageID {
			return msg.flagged
		}
	}
	return ""
}

func (m *MemStore) RecordJoin(_ context.Context, userID, username, communityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.counter(userID, communityID, at)
	s.Joins++
	if username != "" {
		s.Username = username
	}
	return nil
}

func (m *MemStore) RecordLeave(_ context.Context, userID, communityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter(userID, communityID, at).Leaves++
	return nil
}

func (m *MemStore) AddWarning(_ context.Context, userID, communityID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.counter(userID, communityID, time.Now().UTC())
	s.Warnings++
	return s.Warnings, nil
}

func (m *MemStore) AddSlowMode(_ context.Context, userID, communityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter(userID, communityID, time.Now().UTC()).SlowModes++
	return nil
}

func (m *MemStore) MarkBanned(_ context.Context, userID, communityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter(userID, communityID, time.Now().UTC()).Banned = true
	return nil
}

func (m *MemStore) SetCurrentGame(_ context.Context, userID, communityID, game string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{userID, communityID}
	open := -1
	for i, g := range m.games {
		if g.memKey == k && g.source == SourcePresence && g.ended == nil {
			open = i
		}
	}
	if open >= 0 && m.games[open].game == game {
		return false, nil
	}
	if open < 0 && game == "" {
		return false, nil
	}
	if open >= 0 {
		end := at
		m.games[open].ended = &end
	}
	if game != "" {
		m.games = append(m.games, memGame{memKey: k, game: game, source: SourcePresence, started: at})
	}
	return true, nil
}

func (m *MemStore) RecordMention(_ context.Context, userID, communityID, game string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := at
	m.games = append(m.games, memGame{memKey: memKey{userID, communityID}, game: game, source: SourceMention, started: at, ended: &end})
	return nil
}

func (m *MemStore) Stats(_ context.Context, userID, communityID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{UserID: userID, CommunityID: communityID}
	k := memKey{userID, communityID}
	if s, ok := m.counters[k]; ok {
		out = *s
	}
	counts := map[string]int{}
	for _, g := range m.games {
		if g.memKey != k {
			continue
		}
		counts[g.game]++
		if g.source == SourcePresence && g.ended == nil {
			out.CurrentGame = g.game
		}
	}
	out.TopGames = topGames(counts, 5)
	return out, nil
}

func topGames(counts map[string]int, n int) []GameCount {
	out := make([]GameCount, 0, len(counts))
	for g, c := range counts {
		out = append(out, GameCount{Game: g, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Game < out[j].Game
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
