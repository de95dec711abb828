package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat or moderation endpoints; those need a user token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the Twitch identity endpoint
	HTTPClient   *http.Client

	mu  sync.Mutex
	src oauth2.TokenSource
}

func (ts *TokenSource) config() *clientcredentials.Config {
	u := ts.TokenURL
	if u == "" {
		u = defaultTokenURL
	}
	return &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     u,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}

func (ts *TokenSource) httpContext() context.Context {
	ctx := context.Background()
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	return ctx
}

// SetToken seeds the cache; the token is refreshed through client credentials after expiry.
func (ts *TokenSource) SetToken(token string, expiry time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.src = oauth2.ReuseTokenSource(&oauth2.Token{AccessToken: token, TokenType: "bearer", Expiry: expiry}, ts.config().TokenSource(ts.httpContext()))
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ts.mu.Lock()
	if ts.src == nil {
		if ts.ClientID == "" || ts.ClientSecret == "" {
			ts.mu.Unlock()
			return "", errors.New("missing client id/secret for twitch app token")
		}
		ts.src = ts.config().TokenSource(ts.httpContext())
	}
	src := ts.src
	ts.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("twitch token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	return tok.AccessToken, nil
}
