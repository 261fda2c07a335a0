package dateslice

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPlan_FiltersAndPreservesServerOrder(t *testing.T) {
	available := []string{"03152023", "01012023", "02282023"}

	slices, err := Plan("2023-01-01", "2023-03-01", available, zerolog.Nop())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []string{"01012023", "02282023"}
	if len(slices) != len(want) {
		t.Fatalf("Plan returned %d slices, want %d", len(slices), len(want))
	}
	for i, s := range slices {
		if s.ReportDate != want[i] {
			t.Errorf("slice %d = %q, want %q (server order must be preserved)", i, s.ReportDate, want[i])
		}
	}
}

func TestPlan_RangeBoundsInclusive(t *testing.T) {
	available := []string{"01012023", "03012023"}

	slices, err := Plan("2023-01-01", "2023-03-01", available, zerolog.Nop())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(slices) != 2 {
		t.Fatalf("Plan returned %d slices, want 2 (both bounds inclusive)", len(slices))
	}
}

func TestPlan_EmptyEndDateMeansNow(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(AvailableDateFormat)
	nextYear := time.Now().UTC().AddDate(1, 0, 0).Format(AvailableDateFormat)

	slices, err := Plan("2020-01-01", "", []string{yesterday, nextYear}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(slices) != 1 || slices[0].ReportDate != yesterday {
		t.Errorf("Plan with empty end date = %v, want only %q", slices, yesterday)
	}
}

func TestPlan_SkipsUnparseableDates(t *testing.T) {
	available := []string{"not-a-date", "01012023"}

	slices, err := Plan("2023-01-01", "2023-03-01", available, zerolog.Nop())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(slices) != 1 || slices[0].ReportDate != "01012023" {
		t.Errorf("Plan = %v, want only the parseable date", slices)
	}
}

func TestPlan_BadStartDate(t *testing.T) {
	if _, err := Plan("01-01-2023", "", nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for malformed start date")
	}
}
