// Package paginate drives cursor-paginated list endpoints.
//
// Response envelopes differ per endpoint only in where the record list
// and the next-page token live, and in how the token is echoed back. Both
// are captured in a declarative Descriptor consumed by one generic
// Fetcher, instead of one subtype per endpoint.
package paginate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"commerce-extract/pkg/client"
	"commerce-extract/pkg/cursor"
	"commerce-extract/pkg/logging"
)

// Prometheus metrics for list stream pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_pages_fetched_total",
		Help: "Total pages fetched by stream",
	}, []string{"stream"})

	recordsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_records_emitted_total",
		Help: "Total records emitted by stream",
	}, []string{"stream"})
)

// TokenStyle says how a next-page token is echoed into the next request.
type TokenStyle int

const (
	// TokenQueryParams decomposes the token into query parameters which
	// fully replace the first-page parameter set (Walmart style).
	TokenQueryParams TokenStyle = iota

	// TokenVerbatim forwards the token unchanged as a single named
	// parameter alongside the page-size limit (cursor-only APIs).
	TokenVerbatim
)

// Descriptor declares the shape of one paginated list endpoint.
type Descriptor struct {
	// Stream is the stream name, used for logging and metrics.
	Stream string

	// Path is the endpoint path under the client's base URL.
	Path string

	// BaseParams are the first-page parameters (filters, date range,
	// page-size limit).
	BaseParams url.Values

	// DataPath locates the record list in the response envelope, e.g.
	// {"list", "elements", "order"}. All but the last element must be
	// present; a missing leaf means an empty page.
	DataPath []string

	// TokenPath locates the next-page token, e.g. {"list", "meta",
	// "nextCursor"}. Empty means the endpoint does not paginate. A
	// missing leaf terminates pagination; this is the sole termination
	// condition.
	TokenPath []string

	// TokenStyle and TokenParam control how the token is echoed back.
	// TokenParam names the parameter for TokenVerbatim cursors.
	TokenStyle TokenStyle
	TokenParam string

	// Limit is the page-size limit sent with TokenVerbatim cursors.
	Limit string
}

// MalformedResponseError reports a response missing an expected envelope
// container. This surfaces as a hard error rather than empty-page
// termination because it indicates an API contract change.
type MalformedResponseError struct {
	Stream string
	Field  string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("stream %s: malformed response: missing envelope field %q", e.Stream, e.Field)
}

// Fetcher drains one paginated list endpoint sequentially.
type Fetcher struct {
	client *client.Client
	desc   Descriptor
	logger zerolog.Logger
}

// NewFetcher creates a fetcher for the described endpoint.
func NewFetcher(c *client.Client, desc Descriptor) *Fetcher {
	return &Fetcher{
		client: c,
		desc:   desc,
		logger: logging.NewLogger("paginate").With().Str("stream", desc.Stream).Logger(),
	}
}

// Run fetches pages until the remote stops returning a next-page token,
// calling emit for every record in file order. Each page is fully drained
// before the next request goes out; cancellation is checked once per page.
func (f *Fetcher) Run(ctx context.Context, emit func(record map[string]any) error) error {
	token := ""
	pages := 0
	records := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := f.fetchPage(ctx, token)
		if err != nil {
			return err
		}
		pages++
		pagesFetchedTotal.WithLabelValues(f.desc.Stream).Inc()

		pageRecords, err := f.extractRecords(payload)
		if err != nil {
			return err
		}

		for _, record := range pageRecords {
			if err := emit(record); err != nil {
				return err
			}
			records++
		}
		recordsEmittedTotal.WithLabelValues(f.desc.Stream).Add(float64(len(pageRecords)))

		token, err = f.extractToken(payload)
		if err != nil {
			return err
		}
		if token == "" {
			break
		}

		f.logger.Debug().
			Int("page", pages).
			Str("next_token", token).
			Msg("Next page token received")
	}

	f.logger.Info().
		Int("pages", pages).
		Int("records", records).
		Msg("Stream drained")

	return nil
}

// fetchPage issues one page request and decodes the JSON envelope.
func (f *Fetcher) fetchPage(ctx context.Context, token string) (map[string]any, error) {
	resp, err := f.client.Get(ctx, f.desc.Path, f.requestParams(token))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("stream %s: unexpected status %d from %s",
			f.desc.Stream, resp.StatusCode, f.desc.Path)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("stream %s: decode response: %w", f.desc.Stream, err)
	}

	return payload, nil
}

// requestParams builds the parameter set for the next request. A decoded
// query-param token fully replaces the first-page parameters; a verbatim
// token is sent as a single named field plus the page-size limit.
func (f *Fetcher) requestParams(token string) url.Values {
	if token == "" {
		params := url.Values{}
		for k, vs := range f.desc.BaseParams {
			params[k] = append([]string(nil), vs...)
		}
		return params
	}

	if f.desc.TokenStyle == TokenVerbatim {
		params := url.Values{}
		params.Set(f.desc.TokenParam, token)
		if f.desc.Limit != "" {
			params.Set("limit", f.desc.Limit)
		}
		return params
	}

	params := url.Values{}
	for k, v := range cursor.Decode(token) {
		params.Set(k, v)
	}
	return params
}

// extractRecords navigates DataPath and returns the record list.
func (f *Fetcher) extractRecords(payload map[string]any) ([]map[string]any, error) {
	leaf, err := f.dig(payload, f.desc.DataPath)
	if err != nil {
		return nil, err
	}
	if leaf == nil {
		return nil, nil
	}

	items, ok := leaf.([]any)
	if !ok {
		return nil, &MalformedResponseError{
			Stream: f.desc.Stream,
			Field:  strings.Join(f.desc.DataPath, "."),
		}
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			f.logger.Warn().Msg("Skipping non-object record in response list")
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// extractToken navigates TokenPath; a missing leaf means no more pages.
// Scalar tokens are rendered as strings, so numeric cursors paginate the
// same way string cursors do.
func (f *Fetcher) extractToken(payload map[string]any) (string, error) {
	if len(f.desc.TokenPath) == 0 {
		return "", nil
	}

	leaf, err := f.dig(payload, f.desc.TokenPath)
	if err != nil {
		return "", err
	}

	switch v := leaf.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", &MalformedResponseError{
			Stream: f.desc.Stream,
			Field:  strings.Join(f.desc.TokenPath, "."),
		}
	}
}

// dig walks path through nested objects. Missing intermediate containers
// are malformed responses; a missing leaf returns nil.
func (f *Fetcher) dig(payload map[string]any, path []string) (any, error) {
	current := payload
	for i, field := range path[:len(path)-1] {
		next, ok := current[field].(map[string]any)
		if !ok {
			return nil, &MalformedResponseError{
				Stream: f.desc.Stream,
				Field:  strings.Join(path[:i+1], "."),
			}
		}
		current = next
	}

	return current[path[len(path)-1]], nil
}
