package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/dealscout/dealscout/internal/logger"
)

// navigator abstracts in-session page navigation so the pagination loop can
// be exercised without a real browser.
type navigator interface {
	// HTML returns the rendered markup of the current page.
	HTML(ctx context.Context) (string, error)

	// NextPage attempts to navigate to the given page number, reporting
	// whether any navigation strategy succeeded.
	NextPage(ctx context.Context, page int) bool
}

// FetchDynamic drives a headless rendering session: it executes the site's
// client-side script, dismisses consent dialogs, scrolls until the page
// height stabilizes, then extracts listings and follows pagination up to the
// configured page limit.
//
// The browser session is owned by this call and released on every exit path.
func (a *Adapter) FetchDynamic(ctx context.Context, query string, page int) ([]RawListing, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(a.cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	target := a.searchURL(query, page)
	logger.Debug("dynamic fetch starting", "source", a.profile.Name, "url", target)

	navCtx, cancelNav := context.WithTimeout(browserCtx, a.cfg.Timeout)
	defer cancelNav()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(target),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("%s rendering session failed: %w", a.profile.Name, err)
	}

	nav := &browserNavigator{adapter: a, browser: browserCtx}
	nav.dismissConsent(browserCtx)
	nav.scrollToBottom(browserCtx)

	return a.harvestPages(ctx, nav, page)
}

// harvestPages extracts listings from the current page and walks pagination
// until the page limit, the per-query result cap, or two consecutive failed
// navigation attempts.
func (a *Adapter) harvestPages(ctx context.Context, nav navigator, startPage int) ([]RawListing, error) {
	maxPages := a.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	maxResults := a.cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultConfig().MaxResults
	}

	var all []RawListing
	failed := 0

	for page := startPage; page < startPage+maxPages; page++ {
		if ctx.Err() != nil {
			break
		}

		if page > startPage {
			if !nav.NextPage(ctx, page) {
				failed++
				logger.Debug("pagination attempt failed",
					"source", a.profile.Name,
					"page", page,
					"consecutive_failures", failed)
				if failed >= 2 {
					break
				}
				continue
			}
			failed = 0
		}

		html, err := nav.HTML(ctx)
		if err != nil {
			if len(all) == 0 {
				return nil, fmt.Errorf("%s page read failed: %w", a.profile.Name, err)
			}
			logger.Warn("page read failed mid-harvest, keeping partial results",
				"source", a.profile.Name, "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			break
		}

		all = append(all, a.extractListings(doc)...)
		if len(all) >= maxResults {
			all = all[:maxResults]
			break
		}
	}

	logger.Debug("dynamic harvest complete",
		"source", a.profile.Name,
		"listings", len(all))
	return all, nil
}

// browserNavigator implements navigator on a live chromedp session.
type browserNavigator struct {
	adapter *Adapter
	browser context.Context
}

func (n *browserNavigator) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(n.browser, n.adapter.cfg.Timeout)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// NextPage tries the profile's pagination strategies in order: explicit
// page-number links, numbered controls, then a generic "next" control.
func (n *browserNavigator) NextPage(ctx context.Context, page int) bool {
	if ctx.Err() != nil {
		return false
	}

	for _, pattern := range n.adapter.profile.Pagination {
		selector := pattern
		if strings.Contains(pattern, "%d") {
			selector = fmt.Sprintf(pattern, page)
		}

		if n.click(selector, 2*time.Second) {
			n.settle()
			n.scrollToBottom(n.browser)
			logger.Debug("pagination navigated",
				"source", n.adapter.profile.Name,
				"page", page,
				"selector", selector)
			return true
		}
	}
	return false
}

// dismissConsent clicks through cookie/consent dialogs if present.
func (n *browserNavigator) dismissConsent(ctx context.Context) {
	for _, selector := range n.adapter.profile.ConsentSelectors {
		if n.click(selector, time.Second) {
			logger.Debug("consent dialog dismissed",
				"source", n.adapter.profile.Name, "selector", selector)
			n.settle()
			return
		}
	}

	for _, text := range n.adapter.profile.ConsentTexts {
		xpath := fmt.Sprintf(`//button[contains(., %q)]`, text)
		runCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := chromedp.Run(runCtx, chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible))
		cancel()
		if err == nil {
			logger.Debug("consent dialog dismissed",
				"source", n.adapter.profile.Name, "text", text)
			n.settle()
			return
		}
	}
}

// scrollToBottom triggers progressive content loading by scrolling until the
// page height stabilizes. Bounded so infinite feeds cannot hang the session.
func (n *browserNavigator) scrollToBottom(ctx context.Context) {
	const maxScrolls = 8

	var lastHeight int64
	for i := 0; i < maxScrolls; i++ {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		var height int64
		err := chromedp.Run(runCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height),
		)
		cancel()
		if err != nil {
			return
		}
		if height == lastHeight {
			return
		}
		lastHeight = height
		n.settle()
	}
}

func (n *browserNavigator) click(selector string, timeout time.Duration) bool {
	runCtx, cancel := context.WithTimeout(n.browser, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)) == nil
}

func (n *browserNavigator) settle() {
	delay := n.adapter.cfg.Delay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-time.After(delay):
	case <-n.browser.Done():
	}
}
