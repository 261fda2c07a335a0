package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestStatic(t *testing.T) {
	a := Static{"WM_SEC.ACCESS_TOKEN": "abc"}

	headers, err := a.AuthHeaders(context.Background())
	if err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}
	if headers["WM_SEC.ACCESS_TOKEN"] != "abc" {
		t.Errorf("headers = %v", headers)
	}
}

func TestNewClientCredentials_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config",
			config: Config{
				TokenURL:     "https://marketplace.example.com/v3/token",
				ClientID:     "id",
				ClientSecret: "secret",
				TokenHeader:  "WM_SEC.ACCESS_TOKEN",
			},
			expectError: false,
		},
		{
			name: "missing token url",
			config: Config{
				ClientID:     "id",
				ClientSecret: "secret",
				TokenHeader:  "WM_SEC.ACCESS_TOKEN",
			},
			expectError: true,
		},
		{
			name: "missing credentials",
			config: Config{
				TokenURL:    "https://marketplace.example.com/v3/token",
				TokenHeader: "WM_SEC.ACCESS_TOKEN",
			},
			expectError: true,
		},
		{
			name: "missing token header",
			config: Config{
				TokenURL:     "https://marketplace.example.com/v3/token",
				ClientID:     "id",
				ClientSecret: "secret",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClientCredentials(tt.config)
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestClientCredentials_TokenFlow(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("id:secret"))
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("Authorization = %q, want %q", got, wantAuth)
		}
		if got := r.Header.Get("WM_SVC.NAME"); got != "Walmart Marketplace" {
			t.Errorf("WM_SVC.NAME = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}

		fmt.Fprintf(w, `{"access_token": "token-%d", "expires_in": 900}`, requests)
	}))
	defer server.Close()

	a, err := NewClientCredentials(Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		TokenHeader:  "WM_SEC.ACCESS_TOKEN",
		ExtraHeaders: map[string]string{"WM_SVC.NAME": "Walmart Marketplace"},
	})
	if err != nil {
		t.Fatalf("NewClientCredentials failed: %v", err)
	}

	ctx := context.Background()

	headers, err := a.AuthHeaders(ctx)
	if err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}
	if headers["WM_SEC.ACCESS_TOKEN"] != "token-1" {
		t.Errorf("token = %q, want token-1", headers["WM_SEC.ACCESS_TOKEN"])
	}

	// Second call reuses the unexpired token.
	if _, err := a.AuthHeaders(ctx); err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("token endpoint hit %d times, want 1", requests)
	}
}

func TestClientCredentials_RefreshesExpiredToken(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"access_token": "token-%d", "expires_in": 0}`, requests)
	}))
	defer server.Close()

	a, err := NewClientCredentials(Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		TokenHeader:  "X-Token",
	})
	if err != nil {
		t.Fatalf("NewClientCredentials failed: %v", err)
	}

	ctx := context.Background()
	if _, err := a.AuthHeaders(ctx); err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}
	if _, err := a.AuthHeaders(ctx); err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}

	if requests != 2 {
		t.Errorf("token endpoint hit %d times, want 2 (zero lifetime forces refresh)", requests)
	}
}

func TestClientCredentials_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	a, err := NewClientCredentials(Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "wrong",
		TokenHeader:  "X-Token",
	})
	if err != nil {
		t.Fatalf("NewClientCredentials failed: %v", err)
	}

	if _, err := a.AuthHeaders(context.Background()); err == nil {
		t.Error("Expected error for 401 from token endpoint")
	}
}

// memoryTokenCache is an in-memory TokenCache for tests.
type memoryTokenCache struct {
	mu    sync.Mutex
	token string
	sets  int
}

func (m *memoryTokenCache) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrTokenCacheMiss
	}
	return m.token, nil
}

func (m *memoryTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.sets++
	return nil
}

func TestClientCredentials_SharedCache(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"access_token": "fresh", "expires_in": 900}`)
	}))
	defer server.Close()

	cache := &memoryTokenCache{token: "cached"}

	a, err := NewClientCredentials(Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		TokenHeader:  "X-Token",
		Cache:        cache,
	})
	if err != nil {
		t.Fatalf("NewClientCredentials failed: %v", err)
	}

	headers, err := a.AuthHeaders(context.Background())
	if err != nil {
		t.Fatalf("AuthHeaders failed: %v", err)
	}

	if headers["X-Token"] != "cached" {
		t.Errorf("token = %q, want cached token", headers["X-Token"])
	}
	if requests != 0 {
		t.Errorf("token endpoint hit %d times, want 0 (cache hit)", requests)
	}
}
