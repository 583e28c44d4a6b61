package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/dealscout/dealscout/internal/logger"
)

// FetchStatic issues a single HTTP GET against the store's search URL and
// extracts listings from the returned markup.
//
// Transient failures are retried with exponential backoff. When retries are
// exhausted the adapter contributes nothing; the error is reported so the
// orchestrator can log it, but it never aborts the query.
func (a *Adapter) FetchStatic(ctx context.Context, query string, page int) ([]RawListing, error) {
	target := a.searchURL(query, page)

	html, err := a.get(ctx, target)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", a.profile.Name, err)
	}

	listings := a.extractListings(doc)
	logger.Debug("static fetch complete",
		"source", a.profile.Name,
		"url", target,
		"listings", len(listings))
	return listings, nil
}

// get retrieves a page with retries and exponential backoff between attempts.
func (a *Adapter) get(ctx context.Context, target string) (string, error) {
	attempts := a.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := a.cfg.Delay
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		html, err := a.getOnce(ctx, target)
		if err == nil {
			return html, nil
		}
		lastErr = err

		if attempt < attempts {
			logger.Warn("static fetch failed, retrying",
				"source", a.profile.Name,
				"url", target,
				"attempt", attempt,
				"error", err,
				"backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
	}

	return "", fmt.Errorf("%s fetch failed after %d attempts: %w", a.profile.Name, attempts, lastErr)
}

// getOnce performs one HTTP GET using a fresh collector.
func (a *Adapter) getOnce(ctx context.Context, target string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(a.cfg.UserAgent),
	)
	c.SetRequestTimeout(a.cfg.Timeout)
	c.Context = ctx

	var (
		html     string
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "en-ZA,en;q=0.8")
	})

	c.OnResponse(func(r *colly.Response) {
		html = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch error (status %d): %w", status, err)
	})

	if err := c.Visit(target); err != nil {
		return "", fmt.Errorf("failed to visit %s: %w", target, err)
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	return html, nil
}
