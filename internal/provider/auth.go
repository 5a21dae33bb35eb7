package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenSource yields a bearer token for provider calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a long-lived bearer secret.
type StaticToken string

// Token returns the configured secret.
func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// PasswordGrantSource obtains OAuth2 password-grant tokens and refreshes them
// on expiry. Refresh runs single-flight: concurrent callers block on one
// authentication round-trip and share the result.
type PasswordGrantSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client

	group singleflight.Group

	mu      sync.RWMutex
	token   string
	expires time.Time
}

// NewPasswordGrantSource builds a refreshing token source.
func NewPasswordGrantSource(tokenURL, clientID, clientSecret string, client *http.Client) *PasswordGrantSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PasswordGrantSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

// Token returns a cached token while valid, refreshing through singleflight
// otherwise. A 30s safety margin avoids using a token about to expire.
func (p *PasswordGrantSource) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expires := p.token, p.expires
	p.mu.RUnlock()
	if token != "" && time.Until(expires) > 30*time.Second {
		return token, nil
	}

	result, err, _ := p.group.Do("refresh", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed already.
		p.mu.RLock()
		token, expires := p.token, p.expires
		p.mu.RUnlock()
		if token != "" && time.Until(expires) > 30*time.Second {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (p *PasswordGrantSource) refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "password",
		"client_id":     p.clientID,
		"client_secret": p.clientSecret,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return "", &Error{Retryable: true, Message: fmt.Sprintf("authenticate: %v", err)}
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return "", &Error{Retryable: res.StatusCode >= 500, Message: fmt.Sprintf("authenticate: http %d", res.StatusCode)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", &Error{Retryable: true, Message: fmt.Sprintf("decode token response: %v", err)}
	}
	if out.AccessToken == "" {
		return "", &Error{Retryable: false, Message: "authenticate: empty access token"}
	}

	p.mu.Lock()
	p.token = out.AccessToken
	p.expires = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	p.mu.Unlock()

	return out.AccessToken, nil
}
