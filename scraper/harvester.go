// Package scraper fetches listing pages and turns them into records.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/parser"
)

// Harvester fetches single listing pages with retries. It holds no per-page
// state and is safe for concurrent use.
type Harvester struct {
	cfg       *config.Config
	collector *colly.Collector
	parser    *parser.ListingParser
	Metrics   *Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHarvester builds a harvester configured from cfg. A nil metrics value
// disables instrumentation.
func NewHarvester(cfg *config.Config, metrics *Metrics) (*Harvester, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	listing, err := parser.NewListingParser(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Harvester{
		cfg:       cfg,
		collector: collector,
		parser:    listing,
		Metrics:   metrics,
		now:       time.Now,
		sleep:     sleepContext,
	}, nil
}

// Harvest fetches pageURL and extracts its records, retrying failed
// attempts with exponential backoff. A page without cards yields an empty
// slice and no error. When every attempt fails the result is a
// *HarvestError wrapping the last classified failure.
func (h *Harvester) Harvest(ctx context.Context, pageURL string) ([]models.Record, error) {
	maxAttempts := h.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &HarvestError{URL: pageURL, Attempts: attempt - 1, Err: err}
		}

		records, err := h.fetch(pageURL)
		if err == nil {
			h.Metrics.AddRecords(len(records))
			return records, nil
		}
		lastErr = err

		category := errorTypeLabel(err)
		h.Metrics.IncError(category)
		slog.Warn("harvest attempt failed",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("category", category),
			slog.Any("error", err),
		)

		if attempt == maxAttempts {
			break
		}
		h.Metrics.IncRetries()
		if err := h.sleep(ctx, h.backoff(attempt)); err != nil {
			return nil, &HarvestError{URL: pageURL, Attempts: attempt, Err: lastErr}
		}
	}

	return nil, &HarvestError{URL: pageURL, Attempts: maxAttempts, Err: lastErr}
}

// fetch performs one attempt on a clone of the shared collector, so
// concurrent harvests never see each other's callbacks.
func (h *Harvester) fetch(pageURL string) ([]models.Record, error) {
	c := h.collector.Clone()

	var (
		records []models.Record
		status  int
	)

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		h.Metrics.IncRequest("started")
		slog.Debug("harvest request", slog.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		h.Metrics.IncRequest("completed")
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			h.Metrics.ObserveDuration(time.Since(start))
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		h.Metrics.IncRequest("failed")
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		records = h.parser.Extract(e.DOM, h.now())
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, classifyError(err, status)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, classifyError(nil, status)
	}
	return records, nil
}

func (h *Harvester) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := h.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := h.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		default:
			return ErrHTTPStatus{Status: statusCode, Err: wrapped}
		}
	}

	return err
}
