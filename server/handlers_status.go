package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/cultbot/livestream"
	"github.com/onnwee/cultbot/telemetry"
)

type liveStatusJSON struct {
	Platform         string     `json:"platform"`
	IsLive           bool       `json:"is_live"`
	CurrentVideoID   string     `json:"current_video_id,omitempty"`
	AnnouncementSent bool       `json:"announcement_sent"`
	LiveStartedAt    *time.Time `json:"live_started_at,omitempty"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
}

func liveJSON(s livestream.Status) liveStatusJSON {
	return liveStatusJSON{
		Platform:         string(s.Platform),
		IsLive:           s.IsLive,
		CurrentVideoID:   s.CurrentVideoID,
		AnnouncementSent: s.AnnouncementSent,
		LiveStartedAt:    s.LiveStartedAt,
		LastCheckedAt:    s.LastCheckedAt,
	}
}

// HandleStatus returns the pending session count and the live status of each platform.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	lg := telemetry.LoggerWithCorr(ctx)
	out := map[string]any{"ready": h.d.Ready != nil && h.d.Ready.IsSet()}
	if h.d.Sessions != nil {
		n, err := h.d.Sessions.CountPending(ctx)
		if err != nil {
			lg.Warn("count pending sessions", slog.Any("err", err))
		} else {
			out["pending_sessions"] = n
		}
	}
	live := make([]liveStatusJSON, 0, len(h.d.Announcers))
	for _, a := range h.d.Announcers {
		st, err := a.Status(ctx)
		if err != nil {
			lg.Warn("read live status", slog.String("platform", string(a.Platform())), slog.Any("err", err))
			continue
		}
		st.Platform = a.Platform()
		live = append(live, liveJSON(st))
	}
	out["live"] = live
	writeJSON(w, http.StatusOK, out)
}
