// Package auth provides request authentication for marketplace APIs.
//
// The extraction core never computes tokens itself; it consumes an
// Authenticator that yields the headers to attach to each outbound
// request. The client-credentials implementation covers the token flow
// the marketplace APIs use, with an optional Redis-backed cache so
// multiple extractor processes share one access token.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"commerce-extract/pkg/logging"
)

// Authenticator yields the authentication headers for an outbound request.
type Authenticator interface {
	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// Static is a fixed header set, for pre-issued tokens and tests.
type Static map[string]string

// AuthHeaders implements Authenticator.
func (s Static) AuthHeaders(ctx context.Context) (map[string]string, error) {
	headers := make(map[string]string, len(s))
	for k, v := range s {
		headers[k] = v
	}
	return headers, nil
}

// Config holds client-credentials authenticator configuration.
type Config struct {
	// TokenURL is the token endpoint.
	TokenURL string

	// ClientID and ClientSecret form the Basic credentials.
	ClientID     string
	ClientSecret string

	// TokenHeader is the header the access token is presented in
	// (e.g. "WM_SEC.ACCESS_TOKEN").
	TokenHeader string

	// ExtraHeaders are attached to the token request itself (service
	// name, correlation id).
	ExtraHeaders map[string]string

	// ExpiryMargin is subtracted from the reported token lifetime so a
	// token is refreshed before it actually lapses.
	ExpiryMargin time.Duration

	// Cache optionally shares tokens across processes.
	Cache TokenCache

	// HTTPClient used for token requests (default: 30s timeout).
	HTTPClient *http.Client
}

// ClientCredentials implements the client-credentials token flow: POST to
// the token endpoint with Basic auth, track the token's expiry from the
// request start time, refresh on demand.
type ClientCredentials struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentials creates a client-credentials authenticator.
func NewClientCredentials(cfg Config) (*ClientCredentials, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and client secret are required")
	}
	if cfg.TokenHeader == "" {
		return nil, fmt.Errorf("token header name is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &ClientCredentials{
		config:     cfg,
		httpClient: httpClient,
		logger:     logging.NewLogger("auth"),
	}, nil
}

// AuthHeaders implements Authenticator.
func (a *ClientCredentials) AuthHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{a.config.TokenHeader: token}, nil
}

// accessToken returns a valid access token, consulting the shared cache
// before hitting the token endpoint.
func (a *ClientCredentials) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiry) {
		return a.token, nil
	}

	if a.config.Cache != nil {
		token, err := a.config.Cache.Get(ctx)
		if err == nil && token != "" {
			a.logger.Debug().Msg("Access token served from shared cache")
			// The cache entry's TTL bounds its validity; hold it briefly
			// so every request doesn't round-trip to Redis.
			a.token = token
			a.expiry = time.Now().Add(30 * time.Second)
			return token, nil
		}
		if err != nil && err != ErrTokenCacheMiss {
			a.logger.Warn().Err(err).Msg("Token cache read failed, refreshing directly")
		}
	}

	requestedAt := time.Now()
	token, expiresIn, err := a.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	lifetime := time.Duration(expiresIn)*time.Second - a.config.ExpiryMargin
	if lifetime < 0 {
		lifetime = 0
	}

	a.token = token
	// Expiry counts from before the token request, matching how the
	// server measures the lifetime.
	a.expiry = requestedAt.Add(lifetime)

	if a.config.Cache != nil {
		if err := a.config.Cache.Set(ctx, token, lifetime); err != nil {
			a.logger.Warn().Err(err).Msg("Token cache write failed")
		}
	}

	a.logger.Info().
		Time("expires_at", a.expiry).
		Msg("Access token refreshed")

	return token, nil
}

// fetchToken performs the token endpoint request.
func (a *ClientCredentials) fetchToken(ctx context.Context) (string, int, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString(
		[]byte(a.config.ClientID + ":" + a.config.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range a.config.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned no access token")
	}

	return payload.AccessToken, payload.ExpiresIn, nil
}
