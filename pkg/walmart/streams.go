// Package walmart binds the generic extraction core to the Walmart
// Marketplace seller API: list stream descriptors, the platform auth and
// header conventions, and the two report delivery shapes (on-request
// reports behind a pre-signed download URL, reconciliation files served
// directly per report date).
package walmart

import (
	"net/url"
	"time"

	"commerce-extract/pkg/auth"
	"commerce-extract/pkg/client"
	"commerce-extract/pkg/paginate"
	"commerce-extract/pkg/ratelimit"
)

const (
	// BaseURL is the versioned marketplace API root.
	BaseURL = "https://marketplace.walmartapis.com/v3/"

	// TokenPath is the token endpoint path under BaseURL.
	TokenPath = "token"

	// Platform header conventions.
	ServiceHeader     = "WM_SVC.NAME"
	ServiceName       = "Walmart Marketplace"
	CorrelationHeader = "WM_QOS.CORRELATION_ID"
	TokenHeader       = "WM_SEC.ACCESS_TOKEN"

	// defaultLimit is the page size sent on first-page requests.
	defaultLimit = "200"

	dateFormat = "2006-01-02"
)

// NewAuthenticator creates the client-credentials authenticator for the
// given seller credentials. cache may be nil.
func NewAuthenticator(clientID, clientSecret string, cache auth.TokenCache) (*auth.ClientCredentials, error) {
	return auth.NewClientCredentials(auth.Config{
		TokenURL:     BaseURL + TokenPath,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenHeader:  TokenHeader,
		ExtraHeaders: map[string]string{
			ServiceHeader: ServiceName,
		},
		ExpiryMargin: 30 * time.Second,
		Cache:        cache,
	})
}

// ClientConfig returns a client configuration carrying the Walmart header
// conventions. baseURL overrides BaseURL when non-empty (tests point it at
// a local server).
func ClientConfig(baseURL string, authenticator auth.Authenticator, limiter *ratelimit.Tracker) client.Config {
	if baseURL == "" {
		baseURL = BaseURL
	}

	cfg := client.DefaultConfig(baseURL, authenticator)
	cfg.RateLimiter = limiter
	cfg.ServiceHeader = ServiceHeader
	cfg.ServiceName = ServiceName
	cfg.CorrelationHeader = CorrelationHeader
	return cfg
}

// OrdersDescriptor describes the orders list stream. Records sit at
// list.elements.order and the next-page cursor at list.meta.nextCursor,
// decomposed into query parameters that fully replace the first-page set.
func OrdersDescriptor(startDate, endDate string) paginate.Descriptor {
	params := url.Values{
		"lastModifiedStartDate": {startDate},
		"limit":                 {defaultLimit},
	}
	if endDate != "" {
		params.Set("lastModifiedEndDate", endDate)
	}

	return paginate.Descriptor{
		Stream:     "orders",
		Path:       "orders",
		BaseParams: params,
		DataPath:   []string{"list", "elements", "order"},
		TokenPath:  []string{"list", "meta", "nextCursor"},
		TokenStyle: paginate.TokenQueryParams,
	}
}

// ReturnsDescriptor describes the returns list stream. The envelope is
// flatter than orders: records at returnOrders, cursor at meta.nextCursor.
// An empty endDate defaults to now in UTC; the returns endpoint rejects
// open-ended ranges.
func ReturnsDescriptor(startDate, endDate string) paginate.Descriptor {
	if endDate == "" {
		endDate = time.Now().UTC().Format(dateFormat)
	}

	return paginate.Descriptor{
		Stream: "returns",
		Path:   "returns",
		BaseParams: url.Values{
			"returnLastModifiedStartDate": {startDate},
			"returnLastModifiedEndDate":   {endDate},
			"limit":                       {defaultLimit},
		},
		DataPath:   []string{"returnOrders"},
		TokenPath:  []string{"meta", "nextCursor"},
		TokenStyle: paginate.TokenQueryParams,
	}
}

// ItemsDescriptor describes the items list stream, which does not
// paginate: one request, records at ItemResponse.
func ItemsDescriptor() paginate.Descriptor {
	return paginate.Descriptor{
		Stream:   "items",
		Path:     "items",
		DataPath: []string{"ItemResponse"},
	}
}
