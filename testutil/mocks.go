package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses.
// Point a HelixClient at HelixURL().
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu      sync.Mutex
	Bans    []map[string]string
	Deleted []string
}

// NewMockTwitchServer creates a new mock Twitch API server with the moderation endpoints recorded.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Handlers["/helix/moderation/bans"] = m.recordBan
	m.Handlers["/helix/moderation/chat"] = m.recordDelete
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL for twitchapi.HelixClient.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse adds a handler for /helix/users returning one user.
func (m *MockTwitchServer) MockUserResponse(userID, login string, createdAt time.Time, profileImage string) {
	m.handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]string{{
				"id":                userID,
				"login":             login,
				"created_at":        createdAt.UTC().Format(time.RFC3339),
				"profile_image_url": profileImage,
			}},
		})
	})
}

// MockStreamsResponse adds a handler for /helix/streams.
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": streams})
	})
}

func (m *MockTwitchServer) recordBan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data map[string]string `json:"data"`
	}
	b, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(b, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.Bans = append(m.Bans, body.Data)
	m.mu.Unlock()
	writeJSON(w, map[string]any{"data": []map[string]string{{"user_id": body.Data["user_id"]}}})
}

func (m *MockTwitchServer) recordDelete(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.Deleted = append(m.Deleted, r.URL.Query().Get("message_id"))
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot returns copies of the recorded bans and deleted message ids.
func (m *MockTwitchServer) Snapshot() ([]map[string]string, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.Bans...), append([]string(nil), m.Deleted...)
}
