package report

import (
	"fmt"
	"time"
)

// SubmissionError indicates the creation request returned no job
// identifier. Fatal; the stream is aborted.
type SubmissionError struct {
	Reason string
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("report job submission failed: %s", e.Reason)
}

// GenerationError indicates the remote job terminated with an ERROR
// status. The remote job is not resubmitted automatically; restarting the
// pipeline is left to the outer run.
type GenerationError struct {
	JobID   string
	Payload *StatusPayload
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("report generation failed for job %s (status %q)", e.JobID, e.Payload.Status)
}

// TimeoutError indicates the wait budget was exhausted while the job was
// still in progress. LastStatus carries the last observed status payload
// for diagnostics.
type TimeoutError struct {
	JobID      string
	LastStatus *StatusPayload
	Elapsed    time.Duration
	MaxWait    time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("report job %s timed out after %s (max wait %s, last status %q)",
		e.JobID, e.Elapsed.Round(time.Second), e.MaxWait, e.LastStatus.Status)
}

// DownloadError indicates a non-2xx response while fetching the report
// artifact.
type DownloadError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("report download from %s returned status %d", e.URL, e.StatusCode)
}
