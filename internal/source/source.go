// Package source implements per-storefront harvesting adapters.
//
// A single generic Adapter is driven by a per-store Profile of ordered
// locator strategies, replacing the class-per-store specialization such
// scrapers usually grow.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealscout/dealscout/internal/extract"
	"github.com/dealscout/dealscout/internal/logger"
)

// RawListing is the unresolved extraction result for one product card on one
// page of one store. It is ephemeral; the resolver turns it into catalog rows.
type RawListing struct {
	Title           string
	URL             string
	Price           *float64 // nil when no price could be extracted
	ImageURL        string
	SourceListingID string
	Source          string
}

// Source is one storefront harvested independently.
type Source interface {
	Name() string
	BaseURL() string

	// FetchStatic performs a single plain-HTTP search request.
	FetchStatic(ctx context.Context, query string, page int) ([]RawListing, error)

	// FetchDynamic drives a rendering session, following pagination up to
	// the configured page limit.
	FetchDynamic(ctx context.Context, query string, page int) ([]RawListing, error)
}

// Config holds fetch behavior shared by all adapters.
type Config struct {
	Timeout    time.Duration // per-request timeout
	Delay      time.Duration // inter-request delay
	Retries    int           // attempts for transient failures
	MaxPages   int           // pagination limit for dynamic fetches
	MaxPerPage int           // listing cap per page
	MaxResults int           // listing cap per query
	UserAgent  string
}

// Chrome user agent for better compatibility with bot-protected sites
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    15 * time.Second,
		Delay:      time.Second,
		Retries:    3,
		MaxPages:   3,
		MaxPerPage: 10,
		MaxResults: 50,
		UserAgent:  defaultUserAgent,
	}
}

// Adapter harvests one storefront according to its Profile.
type Adapter struct {
	profile Profile
	cfg     Config
	base    *url.URL
	ex      *extract.Extractor
}

// NewAdapter creates an adapter for the given store profile.
func NewAdapter(profile Profile, cfg Config) (*Adapter, error) {
	base, err := url.Parse(profile.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL for %s: %w", profile.Name, err)
	}
	if cfg.MaxPerPage <= 0 {
		cfg.MaxPerPage = DefaultConfig().MaxPerPage
	}
	if profile.MaxPerPage > 0 && profile.MaxPerPage < cfg.MaxPerPage {
		cfg.MaxPerPage = profile.MaxPerPage
	}

	return &Adapter{
		profile: profile,
		cfg:     cfg,
		base:    base,
		ex: &extract.Extractor{
			BaseURL:            base,
			ProductPathMarkers: profile.ProductPathMarkers,
		},
	}, nil
}

// Name returns the store name.
func (a *Adapter) Name() string { return a.profile.Name }

// BaseURL returns the store's base address.
func (a *Adapter) BaseURL() string { return a.profile.BaseURL }

// searchURL builds the search address for a query and page number.
func (a *Adapter) searchURL(query string, page int) string {
	path := fmt.Sprintf(a.profile.SearchPath, url.QueryEscape(query))
	u := a.profile.BaseURL + path
	if page > 1 && a.profile.PageParam != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += fmt.Sprintf("%s%s=%d", sep, a.profile.PageParam, page)
	}
	return u
}

// extractListings locates product containers in a parsed page and extracts a
// RawListing from each, bounded to the per-page cap.
//
// Container location tries the profile's ordered strategies: dedicated
// product-card markers first, then generic item/card class markers, then bare
// product-path links.
func (a *Adapter) extractListings(doc *goquery.Document) []RawListing {
	var containers *goquery.Selection
	for _, loc := range a.profile.Containers {
		if found := loc.Find(doc.Selection); found.Length() > 0 {
			containers = found
			break
		}
	}
	if containers == nil {
		return nil
	}

	var listings []RawListing
	containers.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if l, ok := a.extractListing(card); ok {
			listings = append(listings, l)
		}
		return len(listings) < a.cfg.MaxPerPage
	})

	logger.Debug("extracted listings",
		"source", a.profile.Name,
		"containers", containers.Length(),
		"listings", len(listings))
	return listings
}

// extractListing pulls one RawListing out of a product card. Title and URL
// are required; everything else degrades to absent.
func (a *Adapter) extractListing(card *goquery.Selection) (RawListing, bool) {
	title, ok := a.ex.Title(card, a.profile.Title)
	if !ok {
		return RawListing{}, false
	}

	link, ok := a.ex.URL(card, a.profile.URL)
	if !ok {
		// A bare-link container is its own anchor.
		if href, exists := card.Attr("href"); exists {
			link, ok = a.ex.ProductLink(href)
		}
		if !ok {
			return RawListing{}, false
		}
	}

	l := RawListing{
		Title:           title,
		URL:             link,
		Source:          a.profile.Name,
		SourceListingID: listingID(link, a.profile.ProductPathMarkers),
	}

	if p, ok := a.ex.Price(card, a.profile.Price); ok {
		l.Price = &p
	}
	if img, ok := a.ex.Image(card, a.profile.Image); ok {
		l.ImageURL = img
	}

	return l, true
}

// listingID extracts the store's own listing identifier from a product URL.
func listingID(link string, markers []string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	path := u.Path

	for _, marker := range markers {
		if idx := strings.Index(path, marker); idx >= 0 {
			id := path[idx+len(marker):]
			id = strings.Trim(id, "/")
			if id != "" {
				return id
			}
		}
	}

	// Fallback: last path segment.
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
