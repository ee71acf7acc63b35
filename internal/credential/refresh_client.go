package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized is returned by RefreshClient.Refresh when the
// refresh endpoint answers 401 — the caller (Refresher) must clear
// the store rather than retry.
var ErrUnauthorized = errors.New("credential: refresh endpoint returned 401")

// RefreshClient performs the OAuth refresh-token exchange described in
// spec.md §6: POST application/x-www-form-urlencoded carrying
// refresh_token/client_id/grant_type, with the current access token
// repeated in an OAUTH-TOKEN header. Headers here are deliberately
// plain — unlike the teacher's Cloudflare-evasion browser headers in
// internal/llm/provider/oauth.go, this endpoint is a same-origin
// sibling service with no bot defenses to route around.
type RefreshClient struct {
	RefreshURL string
	HTTPClient *http.Client
}

// NewRefreshClient builds a RefreshClient with a bounded timeout,
// mirroring the teacher's 30s client.Timeout in oauth.go.
func NewRefreshClient(refreshURL string) *RefreshClient {
	return &RefreshClient{
		RefreshURL: refreshURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Refresh exchanges key's refresh token for a new access token. An
// empty returned refresh_token means reuse the old one (spec.md §6).
func (c *RefreshClient) Refresh(ctx context.Context, key OAuthKey) (OAuthKey, error) {
	form := url.Values{
		"refresh_token": {key.RefreshToken},
		"client_id":     {key.ClientID},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RefreshURL, strings.NewReader(form.Encode()))
	if err != nil {
		return OAuthKey{}, fmt.Errorf("credential: building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("OAUTH-TOKEN", key.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return OAuthKey{}, fmt.Errorf("credential: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OAuthKey{}, fmt.Errorf("credential: reading refresh response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return OAuthKey{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return OAuthKey{}, fmt.Errorf("credential: refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return OAuthKey{}, fmt.Errorf("credential: parsing refresh response: %w", err)
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = key.RefreshToken
	}

	return OAuthKey{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().UnixMilli() + parsed.ExpiresIn*1000,
		ClientID:     key.ClientID,
	}, nil
}
