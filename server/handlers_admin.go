package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/cultbot/spam"
	"github.com/onnwee/cultbot/telemetry"
)

type liveCheckJSON struct {
	Platform   string `json:"platform"`
	Live       bool   `json:"live"`
	Announced  bool   `json:"announced"`
	URL        string `json:"url,omitempty"`
	ChannelURL string `json:"channel_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HandleAdminLiveCheck runs a manual live check. ?platform= limits it to one platform.
func (h *Handlers) HandleAdminLiveCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	want := strings.ToLower(r.URL.Query().Get("platform"))
	var results []liveCheckJSON
	for _, a := range h.d.Announcers {
		if want != "" && strings.ToLower(string(a.Platform())) != want {
			continue
		}
		out, err := a.CheckAndAnnounce(r.Context(), true)
		res := liveCheckJSON{
			Platform:   string(a.Platform()),
			Live:       out.Live,
			Announced:  out.Announced,
			URL:        out.URL,
			ChannelURL: out.ChannelURL,
		}
		if err != nil {
			res.Error = err.Error()
			telemetry.LoggerWithCorr(r.Context()).Warn("manual live check failed", slog.String("platform", res.Platform), slog.Any("err", err))
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		http.Error(w, "no live checker for platform", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type gameJSON struct {
	Game  string `json:"game"`
	Count int    `json:"count"`
}

type recordJSON struct {
	Action    string    `json:"action"`
	Category  string    `json:"category,omitempty"`
	Reason    string    `json:"reason"`
	Automated bool      `json:"automated"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleAdminStats returns activity counters and recent moderation entries for one member.
func (h *Handlers) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	user, community := q.Get("user"), q.Get("community")
	if user == "" || community == "" {
		http.Error(w, "user and community are required", http.StatusBadRequest)
		return
	}
	limit := 20
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	ctx := r.Context()
	out := map[string]any{"user": user, "community": community}
	if h.d.Activity != nil {
		st, err := h.d.Activity.Stats(ctx, user, community)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		games := make([]gameJSON, 0, len(st.TopGames))
		for _, g := range st.TopGames {
			games = append(games, gameJSON{Game: g.Game, Count: g.Count})
		}
		out["username"] = st.Username
		out["messages"] = st.Messages
		out["warnings"] = st.Warnings
		out["slow_modes"] = st.SlowModes
		out["joins"] = st.Joins
		out["leaves"] = st.Leaves
		out["banned"] = st.Banned
		out["current_game"] = st.CurrentGame
		out["top_games"] = games
	}
	if h.d.ModLog != nil {
		recs, err := h.d.ModLog.Recent(ctx, user, community, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		entries := make([]recordJSON, 0, len(recs))
		for _, rec := range recs {
			entries = append(entries, recordJSON{
				Action:    string(rec.Action),
				Category:  rec.Category,
				Reason:    rec.Reason,
				Automated: rec.Automated,
				CreatedAt: rec.CreatedAt,
			})
		}
		out["moderation"] = entries
	}
	writeJSON(w, http.StatusOK, out)
}

type copyJSON struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleAdminCopies lists recent messages in a community with the same text, for spotting
// coordinated spam. ?since= is a duration (default 1h).
func (h *Handlers) HandleAdminCopies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.d.Activity == nil {
		http.Error(w, "activity store not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	community, text := q.Get("community"), q.Get("text")
	if community == "" || spam.Normalize(text) == "" {
		http.Error(w, "community and text are required", http.StatusBadRequest)
		return
	}
	window := time.Hour
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		window = d
	}
	want := spam.Normalize(text)
	msgs, err := h.d.Activity.ByFingerprint(r.Context(), community, spam.Fingerprint(text), time.Now().Add(-window), 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	senders := map[string]bool{}
	copies := make([]copyJSON, 0, len(msgs))
	for _, m := range msgs {
		if spam.Normalize(m.Content) != want {
			continue
		}
		senders[m.UserID] = true
		copies = append(copies, copyJSON{MessageID: m.MessageID, UserID: m.UserID, ChannelID: m.ChannelID, CreatedAt: m.At})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"community": community,
		"count":     len(copies),
		"senders":   len(senders),
		"messages":  copies,
	})
}
