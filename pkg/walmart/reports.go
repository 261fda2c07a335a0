package walmart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"commerce-extract/pkg/archive"
	"commerce-extract/pkg/client"
	"commerce-extract/pkg/dateslice"
	"commerce-extract/pkg/logging"
	"commerce-extract/pkg/report"
)

const (
	reportRequestsPath  = "reports/reportRequests"
	availableReconPath  = "report/reconreport/availableReconFiles"
	reconFilePath       = "report/reconreport/reconFile"
	defaultReconVersion = "v1"
)

// ReportProvider drives the on-request report endpoints. Submission and
// polling go through the authenticated API; the finished artifact is a
// single-entry zip behind a pre-signed download URL in the ready payload.
type ReportProvider struct {
	client        *client.Client
	reportType    string
	reportVersion string
}

// NewReportProvider creates a provider for the given report type and
// version (e.g. "ITEM", "v1").
func NewReportProvider(c *client.Client, reportType, reportVersion string) *ReportProvider {
	return &ReportProvider{
		client:        c,
		reportType:    reportType,
		reportVersion: reportVersion,
	}
}

// Submit implements report.Provider.
func (p *ReportProvider) Submit(ctx context.Context) (string, error) {
	params := url.Values{
		"reportType":    {p.reportType},
		"reportVersion": {p.reportVersion},
	}

	resp, err := p.client.Post(ctx, reportRequestsPath, params, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &report.SubmissionError{
			Reason: fmt.Sprintf("report request returned status %d", resp.StatusCode),
		}
	}

	var payload struct {
		RequestID string `json:"requestId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode report request response: %w", err)
	}

	return payload.RequestID, nil
}

// Poll implements report.Provider.
func (p *ReportProvider) Poll(ctx context.Context, jobID string) (*report.StatusPayload, error) {
	resp, err := p.client.Get(ctx, reportRequestsPath+"/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("report status request returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode report status response: %w", err)
	}

	status, _ := raw["requestStatus"].(string)
	downloadURL, _ := raw["downloadURL"].(string)

	return &report.StatusPayload{
		Status:      status,
		DownloadURL: downloadURL,
		Raw:         raw,
	}, nil
}

// Download implements report.Provider. The download URL is pre-signed;
// the request carries none of the marketplace headers.
func (p *ReportProvider) Download(ctx context.Context, jobID string, status *report.StatusPayload) ([]byte, error) {
	return report.RetrieveURL(ctx, p.client, status.DownloadURL)
}

// Vocabulary implements report.Provider.
func (p *ReportProvider) Vocabulary() report.Vocabulary {
	return report.DefaultVocabulary()
}

// DecodeReport unpacks a downloaded report artifact into rows: unzip the
// single inner entry, then run the repairing CSV decoder.
func DecodeReport(blob []byte, strict bool) ([]archive.Row, error) {
	body, err := archive.Decompress(blob, archive.CodecZip)
	if err != nil {
		return nil, err
	}
	return archive.CSVRows(body, strict)
}

// ReconciliationStream extracts the per-date reconciliation files. The
// server publishes which report dates it can serve; each date in the
// configured range becomes one authenticated download of a zip holding a
// conventionally delimited CSV with one metadata line ahead of the header.
type ReconciliationStream struct {
	client        *client.Client
	reportVersion string
	startDate     string
	endDate       string
	logger        zerolog.Logger
}

// NewReconciliationStream creates a reconciliation stream over the given
// date range. reportVersion defaults to v1 when empty; endDate may be
// empty for an open-ended range.
func NewReconciliationStream(c *client.Client, reportVersion, startDate, endDate string) *ReconciliationStream {
	if reportVersion == "" {
		reportVersion = defaultReconVersion
	}

	return &ReconciliationStream{
		client:        c,
		reportVersion: reportVersion,
		startDate:     startDate,
		endDate:       endDate,
		logger:        logging.NewLogger("recon-stream"),
	}
}

// AvailableDates fetches the report dates the server can currently serve,
// in server order.
func (s *ReconciliationStream) AvailableDates(ctx context.Context) ([]string, error) {
	resp, err := s.client.Get(ctx, availableReconPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("available reconciliation files request returned status %d", resp.StatusCode)
	}

	var payload struct {
		AvailableApReportDates []string `json:"availableApReportDates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode available reconciliation dates: %w", err)
	}

	return payload.AvailableApReportDates, nil
}

// Run plans one slice per available report date inside the configured
// range, downloads and decodes each file, and calls emit once per row with
// the slice's report date attached. Slices run sequentially in server
// order.
func (s *ReconciliationStream) Run(ctx context.Context, emit func(reportDate string, row archive.Row) error) error {
	dates, err := s.AvailableDates(ctx)
	if err != nil {
		return err
	}

	slices, err := dateslice.Plan(s.startDate, s.endDate, dates, s.logger)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("available", len(dates)).
		Int("planned", len(slices)).
		Msg("Reconciliation slices planned")

	for _, slice := range slices {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := s.fetchSlice(ctx, slice.ReportDate)
		if err != nil {
			return fmt.Errorf("reconciliation slice %s: %w", slice.ReportDate, err)
		}

		for _, row := range rows {
			if err := emit(slice.ReportDate, row); err != nil {
				return err
			}
		}

		s.logger.Debug().
			Str("report_date", slice.ReportDate).
			Int("rows", len(rows)).
			Msg("Reconciliation slice extracted")
	}

	return nil
}

// fetchSlice downloads and decodes one reconciliation file.
func (s *ReconciliationStream) fetchSlice(ctx context.Context, reportDate string) ([]archive.Row, error) {
	params := url.Values{
		"reportDate":    {reportDate},
		"reportVersion": {s.reportVersion},
	}

	blob, err := report.RetrieveEndpoint(ctx, s.client, reconFilePath, params)
	if err != nil {
		return nil, err
	}

	body, err := archive.Decompress(blob, archive.CodecZip)
	if err != nil {
		return nil, err
	}

	return archive.ReconRows(body)
}
