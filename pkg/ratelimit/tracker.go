package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	callsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extract_rate_limit_calls_remaining",
		Help: "Remaining calls in the current marketplace rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_rate_limit_blocks_total",
		Help: "Total requests blocked due to exhausted call budget",
	})
)

// Headers names the platform's rate limit response headers. Different
// platforms use different names, so they are configuration rather than
// constants.
type Headers struct {
	// Remaining carries the calls left in the current window.
	Remaining string

	// Reset carries the seconds until the window resets.
	Reset string
}

// DefaultHeaders returns the header names most marketplace APIs use.
func DefaultHeaders() Headers {
	return Headers{
		Remaining: "X-RateLimit-Remaining",
		Reset:     "X-RateLimit-Reset",
	}
}

// Tracker monitors the platform call budget and gates requests.
type Tracker struct {
	redis   *redis.Client
	headers Headers
	logger  zerolog.Logger
}

// NewTracker creates a rate limit tracker. The Redis client may be nil,
// in which case the tracker always allows requests and only records
// metrics from headers.
func NewTracker(redisClient *redis.Client, headers Headers, logger zerolog.Logger) *Tracker {
	if headers.Remaining == "" {
		headers = DefaultHeaders()
	}
	return &Tracker{
		redis:   redisClient,
		headers: headers,
		logger:  logger,
	}
}

// GetState retrieves the current budget state from Redis.
// Returns a default healthy state if no data exists.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		return healthyState(), nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyCallsRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get calls remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	// No state in Redis yet
	if err == redis.Nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return healthyState(), nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &State{
		CallsRemaining: remaining,
		ResetAt:        time.Unix(resetTimestamp, 0),
		LastUpdate:     lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

func healthyState() *State {
	return &State{
		CallsRemaining: 100, // Assume healthy until we get real data
		ResetAt:        time.Now().Add(60 * time.Second),
		LastUpdate:     time.Now(),
		IsHealthy:      true,
	}
}

// UpdateFromHeaders parses the platform rate limit headers and updates
// Redis state. Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(t.headers.Remaining)
	if remainStr == "" {
		// Header not present on this endpoint
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", t.headers.Remaining, err)
	}

	resetSeconds := 0
	if resetStr := headers.Get(t.headers.Reset); resetStr != "" {
		resetSeconds, err = strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", t.headers.Reset, err)
		}
	}

	now := time.Now()
	state := &State{
		CallsRemaining: remain,
		ResetAt:        now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:     now,
	}
	state.UpdateHealth()

	callsRemaining.Set(float64(remain))

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("calls_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Call budget low, approaching block threshold")
	}

	if t.redis == nil {
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCallsRemaining, remain, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	return nil
}

// ShouldAllowRequest reports whether the next request may go out given the
// shared call budget.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsBlock() && state.TimeUntilReset() > 0 {
		rateLimitBlocksTotal.Inc()
		t.logger.Warn().
			Int("calls_remaining", state.CallsRemaining).
			Dur("until_reset", state.TimeUntilReset()).
			Msg("Request blocked, call budget exhausted")
		return false, nil
	}

	return true, nil
}
