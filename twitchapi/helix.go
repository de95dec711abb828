// Package twitchapi contains minimal helpers for the Twitch Helix API: user lookups for bot
// suspicion, stream status for live announcements, and the moderation endpoints used to police chat.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// ErrNotFound is returned when Helix answers 404 or an empty lookup.
var ErrNotFound = errors.New("twitch: not found")

// APIError is a non-2xx Helix response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string { return fmt.Sprintf("helix %d: %s", e.Status, e.Body) }

// HelixClient calls Helix with the app token for reads and UserToken for moderation.
type HelixClient struct {
	AppTokenSource *TokenSource
	UserToken      string // moderator token; an "oauth:" prefix is accepted
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) endpoint(path string, q url.Values) string {
	base := hc.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	u := strings.TrimRight(base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends the request and decodes a JSON body into out when non-nil.
func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, body any, user bool, out any) error {
	var tok string
	if user {
		tok = strings.TrimPrefix(hc.UserToken, "oauth:")
		if tok == "" {
			return errors.New("missing twitch user token for moderation")
		}
	} else {
		if hc.AppTokenSource == nil {
			return errors.New("missing twitch app token source")
		}
		t, err := hc.AppTokenSource.Get(ctx)
		if err != nil {
			return err
		}
		tok = t
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, hc.endpoint(path, q), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// User is a Helix user profile.
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// DefaultAvatar reports whether the profile image is one of Twitch's stock pictures.
func (u User) DefaultAvatar() bool {
	return u.ProfileImageURL == "" || strings.Contains(u.ProfileImageURL, "user-default-pictures")
}

// GetUser looks a user up by id.
func (hc *HelixClient) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, fmt.Errorf("user id empty")
	}
	return hc.getUser(ctx, url.Values{"id": {id}})
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	u, err := hc.getUser(ctx, url.Values{"login": {login}})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (hc *HelixClient) getUser(ctx context.Context, q url.Values) (User, error) {
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/users", q, nil, false, &body); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return body.Data[0], nil
}

// Stream is a live stream entry.
type Stream struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserLogin string    `json:"user_login"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// GetStreams returns the live streams for a login; empty when offline.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/streams", url.Values{"user_login": {login}}, nil, false, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// BanUser permanently bans userID from the broadcaster's chat.
func (hc *HelixClient) BanUser(ctx context.Context, broadcasterID, moderatorID, userID, reason string) error {
	if broadcasterID == "" || moderatorID == "" || userID == "" {
		return fmt.Errorf("ban: broadcaster, moderator and user ids are required")
	}
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}}
	payload := map[string]any{"data": map[string]string{"user_id": userID, "reason": reason}}
	return hc.do(ctx, http.MethodPost, "/moderation/bans", q, payload, true, nil)
}

// DeleteChatMessage removes one chat message.
func (hc *HelixClient) DeleteChatMessage(ctx context.Context, broadcasterID, moderatorID, messageID string) error {
	if broadcasterID == "" || moderatorID == "" || messageID == "" {
		return fmt.Errorf("delete message: broadcaster, moderator and message ids are required")
	}
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}, "message_id": {messageID}}
	return hc.do(ctx, http.MethodDelete, "/moderation/chat", q, nil, true, nil)
}
