package paginate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"commerce-extract/pkg/client"
)

func newTestClient(t *testing.T, baseURL string) *client.Client {
	t.Helper()

	c, err := client.New(client.DefaultConfig(baseURL, nil))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return c
}

func ordersDescriptor() Descriptor {
	return Descriptor{
		Stream: "orders",
		Path:   "orders",
		BaseParams: url.Values{
			"lastModifiedStartDate": {"2023-01-01"},
			"limit":                 {"200"},
		},
		DataPath:   []string{"list", "elements", "order"},
		TokenPath:  []string{"list", "meta", "nextCursor"},
		TokenStyle: TokenQueryParams,
	}
}

func TestRun_WalmartStylePagination(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			if got := r.URL.Query().Get("lastModifiedStartDate"); got != "2023-01-01" {
				t.Errorf("first page lastModifiedStartDate = %q", got)
			}
			fmt.Fprint(w, `{
				"list": {
					"meta": {"nextCursor": "?limit=200&soIndex=2&partnerId=565"},
					"elements": {"order": [{"purchaseOrderId": "1"}, {"purchaseOrderId": "2"}]}
				}
			}`)
		case 2:
			// The decoded token fully replaces the first-page parameters.
			if got := r.URL.Query().Get("soIndex"); got != "2" {
				t.Errorf("second page soIndex = %q, want 2", got)
			}
			if got := r.URL.Query().Get("lastModifiedStartDate"); got != "" {
				t.Errorf("second page still carries lastModifiedStartDate = %q", got)
			}
			fmt.Fprint(w, `{
				"list": {
					"meta": {},
					"elements": {"order": [{"purchaseOrderId": "3"}]}
				}
			}`)
		default:
			t.Error("unexpected extra page request")
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(newTestClient(t, server.URL), ordersDescriptor())

	var ids []string
	err := fetcher.Run(context.Background(), func(record map[string]any) error {
		ids = append(ids, record["purchaseOrderId"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("fetcher made %d calls, want 2", calls)
	}
	want := []string{"1", "2", "3"}
	if len(ids) != len(want) {
		t.Fatalf("emitted %d records, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("record %d = %q, want %q (file order must be preserved)", i, ids[i], want[i])
		}
	}
}

func TestRun_TerminatesImmediatelyWithoutToken(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"returnOrders": [{"returnOrderId": "r1"}], "meta": {}}`)
	}))
	defer server.Close()

	desc := Descriptor{
		Stream:     "returns",
		Path:       "returns",
		DataPath:   []string{"returnOrders"},
		TokenPath:  []string{"meta", "nextCursor"},
		TokenStyle: TokenQueryParams,
	}

	var records int
	err := NewFetcher(newTestClient(t, server.URL), desc).Run(context.Background(),
		func(record map[string]any) error {
			records++
			return nil
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("fetcher made %d calls, want 1", calls)
	}
	if records != 1 {
		t.Errorf("emitted %d records, want 1", records)
	}
}

func TestRun_VerbatimCursor(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, `{"items": [{"sku": "A"}], "nextCursor": "opaque-cursor-1"}`)
		default:
			if got := r.URL.Query().Get("nextCursor"); got != "opaque-cursor-1" {
				t.Errorf("cursor param = %q, want verbatim token", got)
			}
			if got := r.URL.Query().Get("limit"); got != "20" {
				t.Errorf("limit param = %q, want 20", got)
			}
			fmt.Fprint(w, `{"items": [{"sku": "B"}]}`)
		}
	}))
	defer server.Close()

	desc := Descriptor{
		Stream:     "items",
		Path:       "items",
		BaseParams: url.Values{"limit": {"20"}},
		DataPath:   []string{"items"},
		TokenPath:  []string{"nextCursor"},
		TokenStyle: TokenVerbatim,
		TokenParam: "nextCursor",
		Limit:      "20",
	}

	var skus []string
	err := NewFetcher(newTestClient(t, server.URL), desc).Run(context.Background(),
		func(record map[string]any) error {
			skus = append(skus, record["sku"].(string))
			return nil
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("fetcher made %d calls, want 2", calls)
	}
	if len(skus) != 2 || skus[0] != "A" || skus[1] != "B" {
		t.Errorf("skus = %v", skus)
	}
}

func TestRun_NumericCursor(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, `{"items": [{"sku": "A"}], "nextCursor": 12345}`)
		default:
			if got := r.URL.Query().Get("nextCursor"); got != "12345" {
				t.Errorf("cursor param = %q, want 12345", got)
			}
			fmt.Fprint(w, `{"items": [{"sku": "B"}]}`)
		}
	}))
	defer server.Close()

	desc := Descriptor{
		Stream:     "items",
		Path:       "items",
		DataPath:   []string{"items"},
		TokenPath:  []string{"nextCursor"},
		TokenStyle: TokenVerbatim,
		TokenParam: "nextCursor",
	}

	var skus []string
	err := NewFetcher(newTestClient(t, server.URL), desc).Run(context.Background(),
		func(record map[string]any) error {
			skus = append(skus, record["sku"].(string))
			return nil
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("fetcher made %d calls, want 2 (numeric cursor must not end the stream)", calls)
	}
	if len(skus) != 2 || skus[0] != "A" || skus[1] != "B" {
		t.Errorf("skus = %v", skus)
	}
}

func TestRun_NonScalarTokenIsHardError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [], "nextCursor": {"page": 2}}`)
	}))
	defer server.Close()

	desc := Descriptor{
		Stream:     "items",
		Path:       "items",
		DataPath:   []string{"items"},
		TokenPath:  []string{"nextCursor"},
		TokenStyle: TokenVerbatim,
		TokenParam: "nextCursor",
	}

	err := NewFetcher(newTestClient(t, server.URL), desc).Run(context.Background(),
		func(record map[string]any) error { return nil })

	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedResponseError", err)
	}
	if malformed.Field != "nextCursor" {
		t.Errorf("field = %q, want %q", malformed.Field, "nextCursor")
	}
}

func TestRun_MalformedEnvelopeIsHardError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No "list" container at all: contract change, not an empty page.
		fmt.Fprint(w, `{"unexpected": true}`)
	}))
	defer server.Close()

	err := NewFetcher(newTestClient(t, server.URL), ordersDescriptor()).
		Run(context.Background(), func(record map[string]any) error { return nil })
	if err == nil {
		t.Fatal("Expected MalformedResponseError for missing envelope container")
	}

	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedResponseError", err)
	}
	if malformed.Field != "list" {
		t.Errorf("missing field = %q, want %q", malformed.Field, "list")
	}
}

func TestRun_MissingDataLeafIsEmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"list": {"meta": {}, "elements": {}}}`)
	}))
	defer server.Close()

	var records int
	err := NewFetcher(newTestClient(t, server.URL), ordersDescriptor()).
		Run(context.Background(), func(record map[string]any) error {
			records++
			return nil
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if records != 0 {
		t.Errorf("emitted %d records, want 0", records)
	}
}

func TestRun_NoTokenPathFetchesOnePage(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"ItemResponse": [{"sku": "A"}, {"sku": "B"}]}`)
	}))
	defer server.Close()

	desc := Descriptor{
		Stream:   "items",
		Path:     "items",
		DataPath: []string{"ItemResponse"},
	}

	var records int
	err := NewFetcher(newTestClient(t, server.URL), desc).Run(context.Background(),
		func(record map[string]any) error {
			records++
			return nil
		})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if calls != 1 || records != 2 {
		t.Errorf("calls = %d, records = %d; want 1 call, 2 records", calls, records)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ItemResponse": []}`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	desc := Descriptor{Stream: "items", Path: "items", DataPath: []string{"ItemResponse"}}
	err := NewFetcher(newTestClient(t, server.URL), desc).Run(ctx,
		func(record map[string]any) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run with cancelled context = %v, want context.Canceled", err)
	}
}
