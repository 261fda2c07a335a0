package report

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"commerce-extract/pkg/client"
)

// Two artifact delivery shapes exist: a download endpoint keyed by job id
// on the authenticated API, and an indirect pre-signed URL carried in the
// ready status payload. Providers pick the helper matching their shape.

// RetrieveURL fetches an artifact from a pre-signed download URL. The URL
// embeds its own authorization, so the request carries none of the
// marketplace auth or service headers.
func RetrieveURL(ctx context.Context, c *client.Client, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, &DownloadError{URL: rawURL, StatusCode: 0}
	}

	resp, err := c.DownloadURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}

	return blob, nil
}

// RetrieveEndpoint fetches an artifact from an authenticated API endpoint
// that streams the archive directly (reconciliation-style reports).
func RetrieveEndpoint(ctx context.Context, c *client.Client, path string, params url.Values) ([]byte, error) {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: path, StatusCode: resp.StatusCode}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}

	return blob, nil
}
