package youtubeapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"google.golang.org/api/option"

	"github.com/onnwee/cultbot/config"
)

func newTestOracle(t *testing.T, cfg *config.Config, handler http.HandlerFunc) *LiveOracle {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	o, err := New(context.Background(), cfg, option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), &config.Config{YouTubeChannelHandle: "@x"}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestCheckIfLive_ResolvesHandle(t *testing.T) {
	var channelCalls int32
	cfg := &config.Config{YouTubeAPIKey: "k", YouTubeChannelHandle: "@cult", YouTubeRatePerMinute: 600}
	o := newTestOracle(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/youtube/v3/channels":
			atomic.AddInt32(&channelCalls, 1)
			if r.URL.Query().Get("forHandle") != "@cult" {
				t.Errorf("forHandle = %q", r.URL.Query().Get("forHandle"))
			}
			_, _ = io.WriteString(w, `{"items":[{"id":"UC42"}]}`)
		case "/youtube/v3/search":
			q := r.URL.Query()
			if q.Get("channelId") != "UC42" || q.Get("eventType") != "live" || q.Get("type") != "video" {
				t.Errorf("unexpected search query %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"vid1"}}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	obs, err := o.CheckIfLive(context.Background())
	if err != nil {
		t.Fatalf("CheckIfLive() error = %v", err)
	}
	if !obs.Live || obs.VideoID != "vid1" || obs.URL != "https://www.youtube.com/watch?v=vid1" {
		t.Errorf("CheckIfLive() = %+v", obs)
	}
	if _, err := o.ChannelID(context.Background()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&channelCalls) != 1 {
		t.Errorf("handle resolved %d times, want 1", channelCalls)
	}
}

func TestCheckIfLive_Offline(t *testing.T) {
	cfg := &config.Config{YouTubeAPIKey: "k", YouTubeChannelID: "UC1", YouTubeRatePerMinute: 600}
	o := newTestOracle(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	})
	obs, err := o.CheckIfLive(context.Background())
	if err != nil || obs.Live {
		t.Errorf("CheckIfLive() = %+v, %v; want offline", obs, err)
	}
}

func TestCheckIfLive_ThrottledReturnsCached(t *testing.T) {
	var searches int32
	cfg := &config.Config{YouTubeAPIKey: "k", YouTubeChannelID: "UC1", YouTubeRatePerMinute: 1}
	o := newTestOracle(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		_, _ = io.WriteString(w, `{"items":[{"id":{"videoId":"v"}}]}`)
	})
	first, err := o.CheckIfLive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.CheckIfLive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("throttled result %+v differs from %+v", second, first)
	}
	if atomic.LoadInt32(&searches) != 1 {
		t.Errorf("searches = %d, want 1", searches)
	}
}

func TestCheckIfLive_APIError(t *testing.T) {
	cfg := &config.Config{YouTubeAPIKey: "k", YouTubeChannelID: "UC1", YouTubeRatePerMinute: 600}
	o := newTestOracle(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quotaExceeded"}}`, http.StatusForbidden)
	})
	if _, err := o.CheckIfLive(context.Background()); err == nil {
		t.Error("expected error on quota failure")
	}
}

func TestResolveChannelURL(t *testing.T) {
	o := &LiveOracle{handle: "cult"}
	u, err := o.ResolveChannelURL(context.Background())
	if err != nil || u != "https://www.youtube.com/@cult" {
		t.Errorf("ResolveChannelURL() = %q, %v", u, err)
	}
	o = &LiveOracle{channelID: "UC9"}
	u, err = o.ResolveChannelURL(context.Background())
	if err != nil || u != "https://www.youtube.com/channel/UC9" {
		t.Errorf("ResolveChannelURL() = %q, %v", u, err)
	}
}
