// Package catalog persists the deduplicated product catalog: stores,
// canonical products, per-store listings, price history, and the search
// audit log.
//
// Concurrent creation of the same product or listing is resolved at the
// database boundary: every getOrCreate is an INSERT OR IGNORE followed by a
// SELECT, so unique constraints pick a single winning row.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store is one storefront row.
type Store struct {
	ID      int64
	Name    string
	BaseURL string
}

// Product is a canonical, deduplicated product identity. NormalizedKey is
// immutable once set.
type Product struct {
	ID            int64
	DisplayName   string
	NormalizedKey string
	Brand         string
	Model         string
	Category      string
}

// Listing is a store's offer for a canonical product. There is exactly one
// listing per (product, store) pair.
type Listing struct {
	ID            int64
	ProductID     int64
	StoreID       int64
	Title         string
	URL           string
	ImageURL      string
	CurrentPrice  *float64 // nil = never priced
	OriginalPrice *float64
	IsAvailable   bool
	LastUpdated   time.Time
}

// HistoryEntry records the price a listing held before a change.
type HistoryEntry struct {
	ID          int64
	ListingID   int64
	Price       float64
	IsAvailable bool
	RecordedAt  time.Time
}

// Catalog wraps the SQLite database.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path. Use
// ":memory:" for an ephemeral catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog db: %w", err)
	}

	// An in-memory database exists per connection; keep a single one so every
	// query sees the same data.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// GetOrCreateStore resolves a store by name, creating it on first sight.
func (c *Catalog) GetOrCreateStore(ctx context.Context, name, baseURL string) (Store, error) {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO stores (name, base_url) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, baseURL)
	if err != nil {
		return Store{}, fmt.Errorf("failed to upsert store %s: %w", name, err)
	}

	var s Store
	err = c.db.QueryRowContext(ctx,
		`SELECT id, name, base_url FROM stores WHERE name = ?`, name).
		Scan(&s.ID, &s.Name, &s.BaseURL)
	if err != nil {
		return Store{}, fmt.Errorf("failed to load store %s: %w", name, err)
	}
	return s, nil
}

// GetOrCreateProduct resolves a canonical product by its normalized key,
// creating it from defaults on first sight. Reports whether a row was
// created.
func (c *Catalog) GetOrCreateProduct(ctx context.Context, key string, defaults Product) (Product, bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO products (display_name, normalized_key, brand, model, category)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (normalized_key) DO NOTHING`,
		defaults.DisplayName, key, defaults.Brand, defaults.Model, defaults.Category)
	if err != nil {
		return Product{}, false, fmt.Errorf("failed to upsert product: %w", err)
	}
	created, _ := res.RowsAffected()

	var p Product
	err = c.db.QueryRowContext(ctx,
		`SELECT id, display_name, normalized_key, brand, model, category
		 FROM products WHERE normalized_key = ?`, key).
		Scan(&p.ID, &p.DisplayName, &p.NormalizedKey, &p.Brand, &p.Model, &p.Category)
	if err != nil {
		return Product{}, false, fmt.Errorf("failed to load product: %w", err)
	}
	return p, created > 0, nil
}

// GetOrCreateListing resolves the single listing for a (product, store)
// pair, creating it from defaults on first sight.
func (c *Catalog) GetOrCreateListing(ctx context.Context, productID, storeID int64, defaults Listing) (Listing, bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO listings (product_id, store_id, title, url, image_url, current_price, is_available, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id, store_id) DO NOTHING`,
		productID, storeID, defaults.Title, defaults.URL, defaults.ImageURL,
		nullFloat(defaults.CurrentPrice), defaults.IsAvailable, time.Now().UTC())
	if err != nil {
		return Listing{}, false, fmt.Errorf("failed to upsert listing: %w", err)
	}
	created, _ := res.RowsAffected()

	l, err := c.listingWhere(ctx, `product_id = ? AND store_id = ?`, productID, storeID)
	if err != nil {
		return Listing{}, false, err
	}
	return l, created > 0, nil
}

// ListingByID loads one listing.
func (c *Catalog) ListingByID(ctx context.Context, id int64) (Listing, error) {
	return c.listingWhere(ctx, `id = ?`, id)
}

func (c *Catalog) listingWhere(ctx context.Context, where string, args ...any) (Listing, error) {
	var (
		l         Listing
		price     sql.NullFloat64
		origPrice sql.NullFloat64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, product_id, store_id, title, url, image_url, current_price, original_price, is_available, last_updated
		 FROM listings WHERE `+where, args...).
		Scan(&l.ID, &l.ProductID, &l.StoreID, &l.Title, &l.URL, &l.ImageURL,
			&price, &origPrice, &l.IsAvailable, &l.LastUpdated)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to load listing: %w", err)
	}
	if price.Valid {
		l.CurrentPrice = &price.Float64
	}
	if origPrice.Valid {
		l.OriginalPrice = &origPrice.Float64
	}
	return l, nil
}

// UpdateListing overwrites a listing's price, availability and timestamp.
func (c *Catalog) UpdateListing(ctx context.Context, id int64, price *float64, available bool) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE listings SET current_price = ?, is_available = ?, last_updated = ? WHERE id = ?`,
		nullFloat(price), available, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update listing %d: %w", id, err)
	}
	return nil
}

// AppendHistory records the price a listing held before a change.
func (c *Catalog) AppendHistory(ctx context.Context, listingID int64, price float64, available bool) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO price_history (listing_id, price, is_available) VALUES (?, ?, ?)`,
		listingID, price, available)
	if err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

// PriceHistory returns up to limit history entries for a listing, newest
// first.
func (c *Catalog) PriceHistory(ctx context.Context, listingID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, listing_id, price, is_available, recorded_at
		 FROM price_history WHERE listing_id = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ListingID, &e.Price, &e.IsAvailable, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HistoryCount reports the number of history rows for a listing.
func (c *Catalog) HistoryCount(ctx context.Context, listingID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_history WHERE listing_id = ?`, listingID).Scan(&n)
	return n, err
}

// AppendSearchLog writes one audit row per user-facing search and returns its
// id so the results count can be filled in after resolution.
func (c *Catalog) AppendSearchLog(ctx context.Context, query, clientAddr string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO search_log (query, client_addr) VALUES (?, ?)`, query, clientAddr)
	if err != nil {
		return 0, fmt.Errorf("failed to append search log: %w", err)
	}
	return res.LastInsertId()
}

// SetSearchLogResults updates the results count of a search log row.
func (c *Catalog) SetSearchLogResults(ctx context.Context, id int64, count int) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE search_log SET results_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("failed to update search log %d: %w", id, err)
	}
	return nil
}

// StoreByID loads one store.
func (c *Catalog) StoreByID(ctx context.Context, id int64) (Store, error) {
	var s Store
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, base_url FROM stores WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.BaseURL)
	if err != nil {
		return Store{}, fmt.Errorf("failed to load store %d: %w", id, err)
	}
	return s, nil
}

// ProductByID loads one product.
func (c *Catalog) ProductByID(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.db.QueryRowContext(ctx,
		`SELECT id, display_name, normalized_key, brand, model, category
		 FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.DisplayName, &p.NormalizedKey, &p.Brand, &p.Model, &p.Category)
	if err != nil {
		return Product{}, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
