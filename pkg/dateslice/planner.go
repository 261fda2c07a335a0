// Package dateslice plans one unit of extraction work per report date.
//
// Reconciliation-style report endpoints produce one downloadable file per
// calendar date. The server publishes the dates it can serve; the planner
// filters that universe against the configured date range and emits one
// slice per remaining date, preserving the server's order.
package dateslice

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AvailableDateFormat is the calendar format the server uses for
	// available report dates (MMDDYYYY).
	AvailableDateFormat = "01022006"

	// RangeDateFormat is the format of the configured start/end dates.
	RangeDateFormat = "2006-01-02"
)

// Slice is one date-partitioned unit of extraction work. Immutable once
// created; lives for a single request/parse cycle.
type Slice struct {
	// ReportDate in the server's calendar format (MMDDYYYY).
	ReportDate string
}

// Plan filters availableDates to [startDate, endDate] inclusive and
// returns one slice per remaining date.
//
// startDate and endDate use the 2006-01-02 format; an empty endDate means
// now in UTC at planning time. availableDates use the server's MMDDYYYY
// format and keep their server-defined order, which is not necessarily
// chronological. Dates that fail to parse are skipped with a warning
// rather than failing the run.
func Plan(startDate, endDate string, availableDates []string, logger zerolog.Logger) ([]Slice, error) {
	start, err := time.Parse(RangeDateFormat, startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", startDate, err)
	}

	var end time.Time
	if endDate == "" {
		end = time.Now().UTC()
	} else {
		end, err = time.Parse(RangeDateFormat, endDate)
		if err != nil {
			return nil, fmt.Errorf("parse end date %q: %w", endDate, err)
		}
	}

	var slices []Slice
	for _, available := range availableDates {
		date, err := time.Parse(AvailableDateFormat, available)
		if err != nil {
			logger.Warn().
				Str("report_date", available).
				Msg("Skipping unparseable available report date")
			continue
		}

		if date.Before(start) || date.After(end) {
			continue
		}

		slices = append(slices, Slice{ReportDate: available})
	}

	return slices, nil
}
