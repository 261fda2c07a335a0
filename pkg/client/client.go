// Package client provides the core marketplace HTTP client with
// authentication, rate limit gating, retries, and error handling.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"commerce-extract/pkg/auth"
	"commerce-extract/pkg/logging"
	"commerce-extract/pkg/ratelimit"
)

// Prometheus metrics for marketplace client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_requests_total",
		Help: "Total marketplace requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extract_request_duration_seconds",
		Help:    "Marketplace request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_errors_total",
		Help: "Total marketplace errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the versioned API root, e.g.
	// "https://marketplace.walmartapis.com/v3/".
	BaseURL string

	// Authenticator supplies per-request auth headers. Nil means
	// unauthenticated requests.
	Authenticator auth.Authenticator

	// RateLimiter gates requests against the shared call budget. Optional.
	RateLimiter *ratelimit.Tracker

	// ServiceHeader/ServiceName identify the calling service
	// (e.g. "WM_SVC.NAME" / "Walmart Marketplace").
	ServiceHeader string
	ServiceName   string

	// CorrelationHeader carries a fresh UUID per request
	// (e.g. "WM_QOS.CORRELATION_ID").
	CorrelationHeader string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration for the given API root.
func DefaultConfig(baseURL string, authenticator auth.Authenticator) Config {
	return Config{
		BaseURL:       baseURL,
		Authenticator: authenticator,
		Timeout:       30 * time.Second,
		Retry:         DefaultRetryConfig(),
	}
}

// Client is the marketplace HTTP client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// New creates a new marketplace client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      logging.NewLogger("api-client"),
	}, nil
}

// Get performs a GET request against an API path with query parameters.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Post performs a POST request against an API path. body may be nil for
// endpoints driven purely by query parameters.
func (c *Client) Post(ctx context.Context, path string, params url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(path, params), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// DownloadURL performs a plain GET of an absolute URL without auth or
// service headers. Report download URLs are pre-signed and must not carry
// the marketplace auth headers.
func (c *Client) DownloadURL(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	return resp, nil
}

// Do performs an HTTP request with rate limit gating, auth injection, and
// retry on transient failures. Responses with 4xx status are returned to
// the caller, not treated as transport errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check the shared call budget
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrBudgetExhausted
		}
	}

	// Step 2: Attach auth and service headers
	if c.config.Authenticator != nil {
		authHeaders, err := c.config.Authenticator.AuthHeaders(ctx)
		if err != nil {
			return nil, fmt.Errorf("get auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.config.ServiceHeader != "" {
		req.Header.Set(c.config.ServiceHeader, c.config.ServiceName)
	}
	if c.config.CorrelationHeader != "" {
		req.Header.Set(c.config.CorrelationHeader, uuid.NewString())
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing marketplace request")

	// Step 3: Execute with retry on transient failures
	var resp *http.Response

	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		// Rewind the body for repeat attempts.
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return ErrorClassNetwork, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, reqErr
		}

		// Mirror the platform call budget, best effort.
		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Marketplace request error")

			if shouldRetry(errClass) {
				apiErr := &APIError{
					StatusCode: resp.StatusCode,
					ErrorClass: errClass,
					Message:    resp.Status,
				}
				resp.Body.Close() // Close the body before retrying
				return errClass, apiErr
			}

			// Don't retry client errors - let the caller handle the status
			return errClass, nil
		}

		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return "", nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return resp, nil
}

// classifyStatus categorizes an HTTP status for observability and retry handling.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// endpointURL joins the base URL, path, and query parameters.
func (c *Client) endpointURL(path string, params url.Values) string {
	full := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return full
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
