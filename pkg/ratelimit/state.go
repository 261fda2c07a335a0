// Package ratelimit tracks marketplace API call budgets and gates requests.
// The marketplace APIs advertise the remaining call budget and the window
// reset via response headers; the tracker mirrors that state in Redis so
// every extractor process sharing the credentials sees one budget.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyCallsRemaining = "extract:rate_limit:calls_remaining"
	RedisKeyResetTimestamp = "extract:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "extract:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when the remaining call
	// budget falls below this value, leaving headroom for the in-flight
	// report poll to finish.
	ThresholdCritical = 5

	// ThresholdWarning marks the state unhealthy and logs throttling
	// warnings when the remaining budget falls below this value.
	ThresholdWarning = 20
)

// State is the current call budget state shared across extractor
// processes via Redis.
type State struct {
	// CallsRemaining is the number of calls left in the current window,
	// taken from the platform's remaining-budget header.
	CallsRemaining int `json:"calls_remaining"`

	// ResetAt is when the budget window resets, derived from the
	// platform's reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while CallsRemaining is at or above the warning
	// threshold.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge and should be
// refreshed from Redis or from response headers.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true if requests should be blocked until the window
// resets.
func (s *State) NeedsBlock() bool {
	return s.CallsRemaining < ThresholdCritical
}

// NeedsThrottling returns true if the budget is low but not yet critical.
func (s *State) NeedsThrottling() bool {
	return s.CallsRemaining < ThresholdWarning && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the budget window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from CallsRemaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.CallsRemaining >= ThresholdWarning
}
