// Package harvest runs tiered searches across the configured sources.
//
// Each search walks a ladder: cached results, then browser-driven dynamic
// fetches, then static HTTP fetches, and finally a deterministic synthetic
// baseline. The first tier that yields listings wins, so a search always
// returns something even when every storefront is unreachable.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dealscout/dealscout/internal/cache"
	"github.com/dealscout/dealscout/internal/catalog"
	"github.com/dealscout/dealscout/internal/logger"
	"github.com/dealscout/dealscout/internal/resolver"
	"github.com/dealscout/dealscout/internal/source"
)

// Tier identifies which rung of the harvest ladder produced a response.
type Tier string

const (
	TierCached   Tier = "cached"
	TierDynamic  Tier = "dynamic"
	TierStatic   Tier = "static"
	TierBaseline Tier = "baseline"
)

// ErrEmptyQuery is returned for blank or whitespace-only queries.
var ErrEmptyQuery = errors.New("search query must not be empty")

// ErrUnknownSource is returned when a named source is not configured.
var ErrUnknownSource = errors.New("unknown source")

// Options controls one orchestrator's behaviour.
type Options struct {
	// CacheTTL is how long a non-empty result set is served from cache.
	CacheTTL time.Duration
	// QueryTimeout bounds the live tiers of a single search.
	QueryTimeout time.Duration
	// MaxResults caps the resolved results per search. 0 means unlimited.
	MaxResults int
}

// DefaultOptions returns the stock orchestrator settings.
func DefaultOptions() Options {
	return Options{
		CacheTTL:     30 * time.Minute,
		QueryTimeout: 60 * time.Second,
		MaxResults:   50,
	}
}

// Response is the outcome of one search.
type Response struct {
	Query   string            `json:"query"`
	Tier    Tier              `json:"tier"`
	Results []resolver.Result `json:"results"`
}

// Orchestrator fans a query out to the configured sources, resolves the raw
// listings into the catalog, and caches the resolved results.
type Orchestrator struct {
	sources []source.Source
	res     *resolver.Resolver
	cat     *catalog.Catalog
	cache   *cache.Cache
	opts    Options

	baseline func(query string) []source.RawListing
}

// New creates an orchestrator over the given sources and catalog.
func New(sources []source.Source, res *resolver.Resolver, cat *catalog.Catalog, c *cache.Cache, opts Options) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		res:      res,
		cat:      cat,
		cache:    c,
		opts:     opts,
		baseline: Baseline,
	}
}

// SearchAllSources runs the full ladder across every configured source.
func (o *Orchestrator) SearchAllSources(ctx context.Context, query, clientAddr string) (*Response, error) {
	return o.search(ctx, o.sources, "all", query, clientAddr)
}

// SearchSource runs the ladder against a single named source.
func (o *Orchestrator) SearchSource(ctx context.Context, name, query, clientAddr string) (*Response, error) {
	for _, src := range o.sources {
		if strings.EqualFold(src.Name(), name) {
			return o.search(ctx, []source.Source{src}, src.Name(), query, clientAddr)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

// SearchWithRetries re-runs the full ladder up to attempts times, returning
// as soon as a pass yields results.
func (o *Orchestrator) SearchWithRetries(ctx context.Context, query, clientAddr string, attempts int) (*Response, error) {
	if attempts < 1 {
		attempts = 1
	}
	var resp *Response
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		resp, err = o.SearchAllSources(ctx, query, clientAddr)
		if err != nil {
			return nil, err
		}
		if len(resp.Results) > 0 {
			return resp, nil
		}
		logger.Info("search pass yielded nothing, retrying",
			"query", query, "attempt", i+1, "attempts", attempts)
	}
	return resp, nil
}

func (o *Orchestrator) search(ctx context.Context, sources []source.Source, scope, query, clientAddr string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	logID, err := o.cat.AppendSearchLog(ctx, query, clientAddr)
	if err != nil {
		logger.Warn("failed to record search", "query", query, "error", err)
	}

	key := scope + "|" + resolver.Normalize(query)
	if v, ok := o.cache.Get(key); ok {
		results := v.([]resolver.Result)
		logger.Debug("serving search from cache", "query", query, "results", len(results))
		o.finishLog(ctx, logID, len(results))
		return &Response{Query: query, Tier: TierCached, Results: results}, nil
	}

	raw, tier := o.harvest(ctx, sources, scope, query)

	results := o.resolveAll(ctx, raw)
	if len(results) > 0 {
		o.cache.Set(key, results, o.opts.CacheTTL)
	}
	o.finishLog(ctx, logID, len(results))

	logger.Info("search complete",
		"query", query, "tier", string(tier), "results", len(results))
	return &Response{Query: query, Tier: tier, Results: results}, nil
}

// harvest walks the live tiers under the per-query deadline and falls back to
// the synthetic baseline when both come up empty.
func (o *Orchestrator) harvest(ctx context.Context, sources []source.Source, scope, query string) ([]source.RawListing, Tier) {
	liveCtx := ctx
	if o.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		liveCtx, cancel = context.WithTimeout(ctx, o.opts.QueryTimeout)
		defer cancel()
	}

	for _, tier := range []Tier{TierDynamic, TierStatic} {
		raw := o.fanOut(liveCtx, sources, tier, query)
		if len(raw) > 0 {
			return raw, tier
		}
		logger.Info("tier produced no listings, falling back",
			"tier", string(tier), "query", query)
	}

	raw := o.baseline(query)
	if scope != "all" {
		raw = filterByStore(raw, scope)
	}
	return raw, TierBaseline
}

// fanOut fetches one tier from every source concurrently. The pool is bounded
// by the number of configured sources, and a failing source only loses its
// own contribution.
func (o *Orchestrator) fanOut(ctx context.Context, sources []source.Source, tier Tier, query string) []source.RawListing {
	slots := len(o.sources)
	if slots < 1 {
		slots = 1
	}
	sem := make(chan struct{}, slots)

	perSource := make([][]source.RawListing, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetch := src.FetchDynamic
			if tier == TierStatic {
				fetch = src.FetchStatic
			}
			listings, err := fetch(ctx, query, 1)
			if err != nil {
				logger.Warn("source fetch failed",
					"source", src.Name(), "tier", string(tier), "error", err)
				return
			}
			perSource[i] = listings
		}(i, src)
	}
	wg.Wait()

	var merged []source.RawListing
	for _, listings := range perSource {
		merged = append(merged, listings...)
	}
	return merged
}

// resolveAll persists raw listings through the identity resolver, dropping
// duplicates and anything that fails to resolve.
func (o *Orchestrator) resolveAll(ctx context.Context, raw []source.RawListing) []resolver.Result {
	baseByName := make(map[string]string, len(o.sources))
	for _, s := range o.sources {
		baseByName[s.Name()] = s.BaseURL()
	}

	seen := make(map[int64]bool, len(raw))
	var results []resolver.Result
	for _, rl := range raw {
		if o.opts.MaxResults > 0 && len(results) >= o.opts.MaxResults {
			break
		}
		baseURL := baseByName[rl.Source]
		if baseURL == "" {
			baseURL = StoreURL(rl.Source)
		}
		res, err := o.res.Resolve(ctx, rl, baseURL)
		if err != nil {
			logger.Warn("failed to resolve listing",
				"source", rl.Source, "title", rl.Title, "error", err)
			continue
		}
		if seen[res.ListingID] {
			continue
		}
		seen[res.ListingID] = true
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) finishLog(ctx context.Context, logID int64, count int) {
	if logID == 0 {
		return
	}
	if err := o.cat.SetSearchLogResults(ctx, logID, count); err != nil {
		logger.Warn("failed to update search log", "id", logID, "error", err)
	}
}

func filterByStore(raw []source.RawListing, store string) []source.RawListing {
	var filtered []source.RawListing
	for _, rl := range raw {
		if rl.Source == store {
			filtered = append(filtered, rl)
		}
	}
	return filtered
}
