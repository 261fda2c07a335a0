// Package amazon binds the extraction core to the Amazon Ads reporting
// v3 API. Reports are requested with a JSON body describing the columns
// and grouping, polled by report id, and delivered as gzip-compressed
// JSON behind a pre-signed URL.
package amazon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"commerce-extract/pkg/archive"
	"commerce-extract/pkg/client"
	"commerce-extract/pkg/report"
)

const reportsPath = "reporting/reports"

// Filter restricts a report to given field values.
type Filter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Configuration is the report configuration block of a creation request.
type Configuration struct {
	AdProduct    string   `json:"adProduct"`
	GroupBy      []string `json:"groupBy"`
	Columns      []string `json:"columns"`
	ReportTypeID string   `json:"reportTypeId"`
	Filters      []Filter `json:"filters"`
	TimeUnit     string   `json:"timeUnit"`
	Format       string   `json:"format"`
}

// Request is a report creation request. Columns are caller supplied; the
// API rejects requests naming columns the report type does not carry.
type Request struct {
	Name          string        `json:"name"`
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	Configuration Configuration `json:"configuration"`
}

// NewSponsoredProductsRequest builds a single-day sponsored products
// report request for the given record type. The record type picks the
// report type id, grouping, and filters; columns come from the caller.
func NewSponsoredProductsRequest(recordType, reportDate string, columns []string) Request {
	reportTypeID := "spCampaigns"
	groupBy := []string{"campaign", "campaignPlacement"}
	var filters []Filter

	switch recordType {
	case "adGroups":
		groupBy = append(groupBy, "adGroup")

	case "productAds":
		reportTypeID = "spAdvertisedProduct"
		groupBy = []string{"advertiser"}

	case "asins_keywords", "asins_targets":
		reportTypeID = "spPurchasedProduct"
		groupBy = []string{"asin"}

	case "keywords":
		reportTypeID = "spTargeting"
		groupBy = []string{"targeting"}
		filters = []Filter{
			{Field: "keywordType", Values: []string{
				"BROAD", "PHRASE", "EXACT", "TARGETING_EXPRESSION", "TARGETING_EXPRESSION_PREDEFINED",
			}},
			{Field: "adKeywordStatus", Values: []string{"ENABLED", "PAUSED", "ARCHIVED"}},
		}

	case "targets":
		reportTypeID = "spTargeting"
		groupBy = []string{"targeting"}
		filters = []Filter{
			{Field: "keywordType", Values: []string{
				"TARGETING_EXPRESSION", "TARGETING_EXPRESSION_PREDEFINED",
			}},
		}

	case "searchTerm":
		reportTypeID = "spSearchTerm"
		groupBy = []string{"searchTerm"}
		filters = []Filter{
			{Field: "keywordType", Values: []string{
				"BROAD", "PHRASE", "EXACT", "TARGETING_EXPRESSION", "TARGETING_EXPRESSION_PREDEFINED",
			}},
		}
	}

	return Request{
		Name:      fmt.Sprintf("%s report %s", recordType, reportDate),
		StartDate: reportDate,
		EndDate:   reportDate,
		Configuration: Configuration{
			AdProduct:    "SPONSORED_PRODUCTS",
			GroupBy:      groupBy,
			Columns:      columns,
			ReportTypeID: reportTypeID,
			Filters:      filters,
			TimeUnit:     "SUMMARY",
			Format:       "GZIP_JSON",
		},
	}
}

// ReportProvider drives one v3 report request through the job lifecycle.
type ReportProvider struct {
	client  *client.Client
	request Request
}

// NewReportProvider creates a provider for the given report request.
func NewReportProvider(c *client.Client, request Request) *ReportProvider {
	return &ReportProvider{client: c, request: request}
}

// Submit implements report.Provider.
func (p *ReportProvider) Submit(ctx context.Context) (string, error) {
	body, err := json.Marshal(p.request)
	if err != nil {
		return "", fmt.Errorf("encode report request: %w", err)
	}

	resp, err := p.client.Post(ctx, reportsPath, nil, bytes.NewReader(body), "application/json")
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
		ReportID string `json:"reportId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode report request response: %w", err)
	}

	return payload.ReportID, nil
}

// Poll implements report.Provider.
func (p *ReportProvider) Poll(ctx context.Context, jobID string) (*report.StatusPayload, error) {
	resp, err := p.client.Get(ctx, reportsPath+"/"+jobID, nil)
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

	status, _ := raw["status"].(string)
	downloadURL, _ := raw["url"].(string)

	return &report.StatusPayload{
		Status:      status,
		DownloadURL: downloadURL,
		Raw:         raw,
	}, nil
}

// Download implements report.Provider.
func (p *ReportProvider) Download(ctx context.Context, jobID string, status *report.StatusPayload) ([]byte, error) {
	return report.RetrieveURL(ctx, p.client, status.DownloadURL)
}

// Vocabulary implements report.Provider.
func (p *ReportProvider) Vocabulary() report.Vocabulary {
	return report.Vocabulary{
		InProgress: []string{"PENDING", "PROCESSING"},
		Ready:      []string{"COMPLETED"},
		Error:      []string{"FAILED"},
	}
}

// DecodeReport unpacks a downloaded v3 report artifact: gunzip, then
// decode the JSON record list.
func DecodeReport(blob []byte) ([]map[string]any, error) {
	body, err := archive.Decompress(blob, archive.CodecGzip)
	if err != nil {
		return nil, err
	}
	return archive.JSONRows(body)
}
