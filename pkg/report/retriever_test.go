package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"commerce-extract/pkg/client"
)

func newTestClient(t *testing.T, baseURL string) *client.Client {
	t.Helper()

	c, err := client.New(client.DefaultConfig(baseURL, nil))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return c
}

func TestRetrieveURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("pre-signed download must not carry auth headers")
		}
		w.Write([]byte("artifact-bytes"))
	}))
	defer server.Close()

	blob, err := RetrieveURL(context.Background(), newTestClient(t, server.URL), server.URL+"/report.zip")
	if err != nil {
		t.Fatalf("RetrieveURL failed: %v", err)
	}
	if string(blob) != "artifact-bytes" {
		t.Errorf("blob = %q", blob)
	}
}

func TestRetrieveURL_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := RetrieveURL(context.Background(), newTestClient(t, server.URL), server.URL+"/report.zip")

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	if dlErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", dlErr.StatusCode)
	}
}

func TestRetrieveURL_EmptyURL(t *testing.T) {
	_, err := RetrieveURL(context.Background(), newTestClient(t, "http://localhost"), "")

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError for empty URL", err)
	}
}

func TestRetrieveEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reconFile" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("reportDate"); got != "01152023" {
			t.Errorf("reportDate = %q", got)
		}
		w.Write([]byte("recon-archive"))
	}))
	defer server.Close()

	params := url.Values{"reportDate": {"01152023"}}
	blob, err := RetrieveEndpoint(context.Background(), newTestClient(t, server.URL), "reconFile", params)
	if err != nil {
		t.Fatalf("RetrieveEndpoint failed: %v", err)
	}
	if string(blob) != "recon-archive" {
		t.Errorf("blob = %q", blob)
	}
}

func TestRetrieveEndpoint_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := RetrieveEndpoint(context.Background(), newTestClient(t, server.URL), "reconFile", nil)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
}
