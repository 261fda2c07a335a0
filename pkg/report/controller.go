// Package report implements the asynchronous report pipeline: submit a
// report-generation job, poll its status with a bounded wait, and download
// the finished artifact.
//
// The job lifecycle is identical across providers; only the request and
// response field names differ. The Controller implements the lifecycle
// once and providers implement the small capability set it needs (submit,
// poll, download, status vocabulary).
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"commerce-extract/pkg/logging"
)

// Prometheus metrics for report jobs.
var (
	reportJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_report_jobs_total",
		Help: "Total report jobs by terminal outcome",
	}, []string{"outcome"})

	reportPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_report_polls_total",
		Help: "Total report status polls",
	})

	reportWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extract_report_wait_seconds",
		Help:    "Wall-clock wait from submission to a terminal state",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
	})
)

// State is the controller-side job state.
type State int

const (
	// StateSubmitted is the state right after job creation.
	StateSubmitted State = iota

	// StateInProgress means the remote is still generating the report.
	StateInProgress

	// StateReady means the artifact can be downloaded.
	StateReady

	// StateError means the remote job failed terminally.
	StateError

	// StateTimedOut means the wait budget ran out first.
	StateTimedOut
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "SUBMITTED"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateReady:
		return "READY"
	case StateError:
		return "ERROR"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Vocabulary maps provider status strings onto controller states.
type Vocabulary struct {
	InProgress []string
	Ready      []string
	Error      []string
}

// DefaultVocabulary returns the marketplace report status vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		InProgress: []string{"RECEIVED", "INPROGRESS"},
		Ready:      []string{"READY"},
		Error:      []string{"ERROR"},
	}
}

// Classify maps a raw status string to a state. The second return is
// false for statuses outside the vocabulary; those are treated as
// in-progress by the controller, never as fatal on their own.
func (v Vocabulary) Classify(status string) (State, bool) {
	for _, s := range v.InProgress {
		if s == status {
			return StateInProgress, true
		}
	}
	for _, s := range v.Ready {
		if s == status {
			return StateReady, true
		}
	}
	for _, s := range v.Error {
		if s == status {
			return StateError, true
		}
	}
	return StateInProgress, false
}

// StatusPayload is one poll response.
type StatusPayload struct {
	// Status is the raw provider status string.
	Status string

	// DownloadURL is present once the report is ready, for providers
	// that deliver the artifact through a second indirection.
	DownloadURL string

	// Raw is the full decoded payload, kept for diagnostics.
	Raw map[string]any
}

// Provider is the capability set a report endpoint must implement.
type Provider interface {
	// Submit issues the report creation request and returns the job id.
	Submit(ctx context.Context) (string, error)

	// Poll fetches the current job status.
	Poll(ctx context.Context, jobID string) (*StatusPayload, error)

	// Download fetches the finished artifact. Called exactly once, after
	// the job reaches READY.
	Download(ctx context.Context, jobID string, status *StatusPayload) ([]byte, error)

	// Vocabulary returns the provider's status vocabulary.
	Vocabulary() Vocabulary
}

// Config holds controller configuration.
type Config struct {
	// MaxWait is the overall wall-clock ceiling, measured from
	// submission. Time spent in job creation counts against it.
	MaxWait time.Duration

	// PollInterval is the fixed sleep between status polls.
	PollInterval time.Duration
}

// DefaultConfig returns the standard wait budget: poll every five
// minutes, give up after two hours.
func DefaultConfig() Config {
	return Config{
		MaxWait:      7200 * time.Second,
		PollInterval: 300 * time.Second,
	}
}

// Job tracks one report job through its lifecycle. Owned exclusively by
// the controller; never persisted beyond one extraction run.
type Job struct {
	ID           string
	Status       State
	SubmittedAt  time.Time
	LastPolledAt time.Time
}

// Controller drives one report job from submission to a terminal state.
// At most one job is in flight per controller run.
type Controller struct {
	provider Provider
	config   Config
	logger   zerolog.Logger
}

// NewController creates a controller for the given provider.
func NewController(provider Provider, cfg Config) *Controller {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	return &Controller{
		provider: provider,
		config:   cfg,
		logger:   logging.NewLogger("report-controller"),
	}
}

// Run executes the full job lifecycle and returns the raw artifact bytes.
//
// State machine: SUBMITTED → {IN_PROGRESS ⟲, READY, ERROR}, with the
// wall-clock ceiling forcing TIMED_OUT regardless of the last observed
// status. READY downloads exactly once; ERROR and TIMED_OUT fail without
// retrying the remote job. Transport faults while polling propagate
// immediately so a dead connection cannot silently burn the wait budget.
func (c *Controller) Run(ctx context.Context) ([]byte, error) {
	start := time.Now()
	defer func() {
		reportWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	jobID, err := c.provider.Submit(ctx)
	if err != nil {
		reportJobsTotal.WithLabelValues("submit_failed").Inc()
		return nil, err
	}
	if jobID == "" {
		reportJobsTotal.WithLabelValues("submit_failed").Inc()
		return nil, &SubmissionError{Reason: "response carries no job identifier"}
	}

	job := &Job{
		ID:          jobID,
		Status:      StateSubmitted,
		SubmittedAt: start,
	}

	c.logger.Info().
		Str("request_id", job.ID).
		Msg("Report job submitted")

	vocab := c.provider.Vocabulary()

	for {
		status, err := c.provider.Poll(ctx, job.ID)
		if err != nil {
			reportJobsTotal.WithLabelValues("poll_failed").Inc()
			return nil, err
		}
		job.LastPolledAt = time.Now()
		reportPollsTotal.Inc()

		state, recognized := vocab.Classify(status.Status)
		if !recognized {
			c.logger.Warn().
				Str("request_id", job.ID).
				Str("status", status.Status).
				Msg("Unexpected report status, treating as in progress")
		}
		job.Status = state

		c.logger.Debug().
			Str("request_id", job.ID).
			Str("status", status.Status).
			Str("state", state.String()).
			Msg("Report job polled")

		switch state {
		case StateReady:
			c.logger.Info().
				Str("request_id", job.ID).
				Dur("waited", time.Since(start)).
				Msg("Report ready, downloading artifact")

			blob, err := c.provider.Download(ctx, job.ID, status)
			if err != nil {
				reportJobsTotal.WithLabelValues("download_failed").Inc()
				return nil, err
			}
			reportJobsTotal.WithLabelValues("ready").Inc()
			return blob, nil

		case StateError:
			reportJobsTotal.WithLabelValues("error").Inc()
			return nil, &GenerationError{JobID: job.ID, Payload: status}
		}

		// Elapsed time counts from submission, not from the first poll.
		// Give up when the budget is spent or the next poll would land
		// past it.
		elapsed := time.Since(start)
		if elapsed+c.config.PollInterval > c.config.MaxWait {
			job.Status = StateTimedOut
			reportJobsTotal.WithLabelValues("timeout").Inc()
			return nil, &TimeoutError{
				JobID:      job.ID,
				LastStatus: status,
				Elapsed:    elapsed,
				MaxWait:    c.config.MaxWait,
			}
		}

		// Cancellable wait so a supervising deadline can interrupt the
		// sleep instead of waiting out the full interval.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("report poll wait cancelled: %w", ctx.Err())
		case <-time.After(c.config.PollInterval):
		}
	}
}
