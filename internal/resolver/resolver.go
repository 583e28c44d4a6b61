// Package resolver merges raw harvested listings into the persisted catalog.
//
// Identity is the normalized title: identical normalized titles always
// resolve to the same canonical product. Resolution is idempotent for
// unchanged inputs and appends a history entry whenever a listing's price
// changes.
package resolver

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dealscout/dealscout/internal/catalog"
	"github.com/dealscout/dealscout/internal/source"
)

// Result is the caller-facing shape of one resolved offer.
type Result struct {
	ListingID   int64     `json:"listing_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Price       *float64  `json:"price,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Store       string    `json:"store"`
	StoreURL    string    `json:"store_url"`
	IsAvailable bool      `json:"is_available"`
	LastUpdated time.Time `json:"last_updated"`
}

// stopWords are dropped during title normalization; they never affect
// product identity.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true,
}

// Normalize turns a listing title into the canonical product key:
// case-folded, whitespace-collapsed, stop words removed.
func Normalize(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	kept := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// knownBrands is the brand lexicon; first match wins.
var knownBrands = []string{
	"Apple", "Samsung", "Sony", "LG", "Dell", "HP", "Lenovo",
	"Asus", "Acer", "MSI", "NVIDIA", "AMD", "Intel",
}

// Brand derives a brand from a title, or "" when none matches.
func Brand(title string) string {
	lower := strings.ToLower(title)
	for _, b := range knownBrands {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}

// modelPatterns are tried in order; first match wins.
var modelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)iPhone\s+\d+[A-Za-z\s]*`),
	regexp.MustCompile(`(?i)Galaxy\s+[A-Za-z0-9\s]+`),
	regexp.MustCompile(`(?i)MacBook\s+[A-Za-z0-9\s]+`),
	regexp.MustCompile(`(?i)Dell\s+[A-Za-z0-9\s]+`),
	regexp.MustCompile(`(?i)HP\s+[A-Za-z0-9\s]+`),
}

// Model derives a model string from a title, or "" when none matches.
func Model(title string) string {
	for _, re := range modelPatterns {
		if m := re.FindString(title); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// Resolver turns raw listings into persisted catalog rows.
type Resolver struct {
	cat   *catalog.Catalog
	locks [64]sync.Mutex
}

// New creates a resolver over the given catalog.
func New(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// lock serializes resolution per (product key, store) pair so concurrent
// harvests cannot race duplicate rows past the database constraints.
func (r *Resolver) lock(key, store string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(store))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}

// Resolve merges one raw listing into the catalog and returns the resolved
// offer.
//
// When the raw price differs from the stored one, a history entry carrying
// the old price is appended before the listing is overwritten. A raw listing
// without a price marks the listing unavailable; the stored price is left
// untouched, never collapsed to zero.
func (r *Resolver) Resolve(ctx context.Context, raw source.RawListing, storeBaseURL string) (Result, error) {
	key := Normalize(raw.Title)

	mu := r.lock(key, raw.Source)
	mu.Lock()
	defer mu.Unlock()

	store, err := r.cat.GetOrCreateStore(ctx, raw.Source, storeBaseURL)
	if err != nil {
		return Result{}, err
	}

	product, _, err := r.cat.GetOrCreateProduct(ctx, key, catalog.Product{
		DisplayName: raw.Title,
		Brand:       Brand(raw.Title),
		Model:       Model(raw.Title),
	})
	if err != nil {
		return Result{}, err
	}

	listing, created, err := r.cat.GetOrCreateListing(ctx, product.ID, store.ID, catalog.Listing{
		Title:        raw.Title,
		URL:          raw.URL,
		ImageURL:     raw.ImageURL,
		CurrentPrice: raw.Price,
		IsAvailable:  raw.Price != nil,
	})
	if err != nil {
		return Result{}, err
	}

	if !created {
		if changed, err := r.refresh(ctx, &listing, raw); err != nil {
			return Result{}, err
		} else if changed {
			listing, err = r.cat.ListingByID(ctx, listing.ID)
			if err != nil {
				return Result{}, err
			}
		}
	}

	return Result{
		ListingID:   listing.ID,
		Title:       listing.Title,
		URL:         listing.URL,
		Price:       listing.CurrentPrice,
		ImageURL:    listing.ImageURL,
		Store:       store.Name,
		StoreURL:    store.BaseURL,
		IsAvailable: listing.IsAvailable,
		LastUpdated: listing.LastUpdated,
	}, nil
}

// refresh applies a re-sighted raw listing to an existing row. Reports
// whether anything was written.
func (r *Resolver) refresh(ctx context.Context, listing *catalog.Listing, raw source.RawListing) (bool, error) {
	if raw.Price == nil {
		// No price extracted: mark unavailable, keep the last known price.
		if !listing.IsAvailable {
			return false, nil
		}
		return true, r.cat.UpdateListing(ctx, listing.ID, listing.CurrentPrice, false)
	}

	switch {
	case listing.CurrentPrice == nil:
		// First time this listing gets a price; nothing to record as history.
		return true, r.cat.UpdateListing(ctx, listing.ID, raw.Price, true)

	case *listing.CurrentPrice != *raw.Price:
		// Price change: history carries the old price, then overwrite.
		if err := r.cat.AppendHistory(ctx, listing.ID, *listing.CurrentPrice, listing.IsAvailable); err != nil {
			return false, err
		}
		return true, r.cat.UpdateListing(ctx, listing.ID, raw.Price, true)

	case !listing.IsAvailable:
		// Same price, back in stock.
		return true, r.cat.UpdateListing(ctx, listing.ID, raw.Price, true)

	default:
		// Unchanged input: resolution is a no-op.
		return false, nil
	}
}
