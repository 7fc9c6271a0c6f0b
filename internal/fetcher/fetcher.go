// Package fetcher retrieves search-result pages from the ratings registry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrFetch wraps any network, timeout, or non-2xx failure. The pipeline
// treats it as "no more pages": the run aborts without retrying.
var ErrFetch = errors.New("page fetch failed")

// Config controls collector behavior.
type Config struct {
	// BaseURL is the registry origin, e.g. https://www.esrb.org.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches registry search pages using a Colly collector.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{cfg: cfg, baseCollector: c}
}

// FetchPage issues one GET against the registry's latest-ratings search
// endpoint for the given page number and returns the raw body.
func (c *Client) FetchPage(ctx context.Context, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1, got %d", ErrFetch, page)
	}
	url := fmt.Sprintf("%s/search/?searchKeyword=&searchType=LatestRatings&pg=%d", c.cfg.BaseURL, page)

	var (
		body     []byte
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: canceled: %v", ErrFetch, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%w: visit %s: %v", ErrFetch, url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, fetchErr)
		}
	}
	return body, nil
}
