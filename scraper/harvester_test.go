package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-customers/config"
)

const testBase = "http://example.test/de_DE/customers"

func newTestHarvester(t *testing.T, transport *httpmock.MockTransport) (*Harvester, *[]time.Duration) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.Parallelism = 1

	h, err := NewHarvester(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new harvester: %v", err)
	}
	h.collector.WithTransport(transport)

	var delays []time.Duration
	h.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return h, &delays
}

func TestHarvesterBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	h := &Harvester{cfg: cfg}

	if got := h.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 200ms", got)
	}
	if got := h.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("backoff(2) = %v, want 400ms", got)
	}
	if got := h.backoff(4); got != cfg.RetryBackoffMax {
		t.Fatalf("backoff(4) = %v, want %v", got, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestHarvestExtractsRecords(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase, htmlResponder(buildListingPage(1, 12)))

	h, delays := newTestHarvester(t, transport)
	records, err := h.Harvest(context.Background(), testBase)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(records) != 12 {
		t.Fatalf("records = %d, want 12", len(records))
	}
	first := records[0]
	if first.Name != "Customer 1" || first.Country != "Germany" || first.Industry != "Retail" {
		t.Fatalf("unexpected first record %+v", first)
	}
	if first.DetailURL != "http://example.test/de_DE/customers/customer-1-1" {
		t.Fatalf("detail url = %q", first.DetailURL)
	}
	if len(*delays) != 0 {
		t.Fatalf("unexpected retries: %v", *delays)
	}
}

func TestHarvestEmptyPage(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/page/4283", htmlResponder("<html><body><p>Keine Kunden gefunden</p></body></html>"))

	h, _ := newTestHarvester(t, transport)
	records, err := h.Harvest(context.Background(), testBase+"/page/4283")
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestHarvestRetriesThenSucceeds(t *testing.T) {
	var calls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/page/2", func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		resp := httpmock.NewStringResponse(http.StatusOK, buildListingPage(2, 3))
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	h, delays := newTestHarvester(t, transport)
	records, err := h.Harvest(context.Background(), testBase+"/page/2")
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) || (*delays)[0] != want[0] || (*delays)[1] != want[1] {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
}

func TestHarvestExhaustsAttempts(t *testing.T) {
	var calls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/page/3", func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
	})

	h, _ := newTestHarvester(t, transport)
	_, err := h.Harvest(context.Background(), testBase+"/page/3")

	var harvestErr *HarvestError
	if !errors.As(err, &harvestErr) {
		t.Fatalf("expected HarvestError, got %v", err)
	}
	if harvestErr.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", harvestErr.Attempts)
	}
	var status ErrHTTPStatus
	if !errors.As(err, &status) || status.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected ErrHTTPStatus 503, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestHarvestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusBadGateway, expected: "http_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testBase, httpmock.NewStringResponder(tt.status, ""))

			h, _ := newTestHarvester(t, transport)
			h.cfg.MaxAttempts = 1

			_, err := h.Harvest(context.Background(), testBase)
			if got := ErrorLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err %v)", got, tt.expected, err)
			}
		})
	}
}

func TestHarvestConnectionError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase, httpmock.NewErrorResponder(
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	))

	h, _ := newTestHarvester(t, transport)
	_, err := h.Harvest(context.Background(), testBase)

	var conn ErrConnection
	if !errors.As(err, &conn) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestHarvestStopsOnCancel(t *testing.T) {
	var calls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return httpmock.NewStringResponse(http.StatusInternalServerError, ""), nil
	})

	h, _ := newTestHarvester(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	h.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := h.Harvest(ctx, testBase)
	var harvestErr *HarvestError
	if !errors.As(err, &harvestErr) || harvestErr.Attempts != 1 {
		t.Fatalf("expected HarvestError after 1 attempt, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildListingPage(page, cards int) string {
	var builder strings.Builder
	builder.WriteString("<html><body><div class=\"row\">")

	for i := 1; i <= cards; i++ {
		id := (page-1)*cards + i
		builder.WriteString("<div class=\"card\"><div>")
		fmt.Fprintf(&builder, "<a href=\"/de_DE/customers/customer-%d-%d\"><h5>Customer %d</h5></a>", id, id, id)
		builder.WriteString("</div>")
		builder.WriteString("<a href=\"/de_DE/customers/industry/retail-7\">Retail</a>")
		builder.WriteString("<a href=\"/de_DE/customers/country/deutschland-56\">Germany</a>")
		fmt.Fprintf(&builder, "<p>Customer %d runs its whole business on the platform.</p>", id)
		builder.WriteString("</div>")
	}

	builder.WriteString("</div>")
	fmt.Fprintf(&builder, "<a href=\"/de_DE/customers/page/%d\">Next</a>", page+1)
	builder.WriteString("</body></html>")
	return builder.String()
}
