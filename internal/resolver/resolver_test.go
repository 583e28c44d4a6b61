package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/dealscout/dealscout/internal/catalog"
	"github.com/dealscout/dealscout/internal/source"
)

func testResolver(t *testing.T) (*Resolver, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return New(cat), cat
}

func rawListing(title string, price *float64) source.RawListing {
	return source.RawListing{
		Title:    title,
		URL:      "https://www.takealot.com/product/x",
		ImageURL: "https://www.takealot.com/img/x.jpg",
		Price:    price,
		Source:   "Takealot",
	}
}

func f(v float64) *float64 { return &v }

// --- Normalization Tests ---

func TestNormalize_Deterministic(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"case", "Apple iPhone 15", "apple iphone 15"},
		{"whitespace", "Apple  iPhone 15", "apple iphone 15"},
		{"mixed", "  APPLE   IPHONE 15 ", "apple iphone 15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Normalize(tt.a) != Normalize(tt.b) {
				t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q; want equal",
					tt.a, Normalize(tt.a), tt.b, Normalize(tt.b))
			}
		})
	}
}

func TestNormalize_DropsStopWords(t *testing.T) {
	got := Normalize("The Widget for the Win")
	if got != "widget win" {
		t.Errorf("Normalize() = %q, want %q", got, "widget win")
	}
}

func TestBrandAndModel(t *testing.T) {
	tests := []struct {
		title string
		brand string
		model string
	}{
		{"Apple iPhone 15 Pro Max 256GB", "Apple", "iPhone 15 Pro Max"},
		{"Samsung Galaxy S24 Ultra 512GB", "Samsung", "Galaxy S24 Ultra 512GB"},
		{"Generic USB Cable", "", ""},
	}
	for _, tt := range tests {
		if got := Brand(tt.title); got != tt.brand {
			t.Errorf("Brand(%q) = %q, want %q", tt.title, got, tt.brand)
		}
		if got := Model(tt.title); got != tt.model {
			t.Errorf("Model(%q) = %q, want %q", tt.title, got, tt.model)
		}
	}
}

// --- Resolution Tests ---

func TestResolve_CreatesCatalogRows(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, rawListing("Apple iPhone 15 Pro Max 256GB", f(24999)), "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res.Store != "Takealot" || res.StoreURL != "https://www.takealot.com" {
		t.Errorf("store = %q / %q", res.Store, res.StoreURL)
	}
	if res.Price == nil || *res.Price != 24999 {
		t.Errorf("price = %v, want 24999", res.Price)
	}
	if !res.IsAvailable {
		t.Error("expected available listing")
	}

	listing, err := cat.ListingByID(ctx, res.ListingID)
	if err != nil {
		t.Fatalf("ListingByID() error = %v", err)
	}
	product, err := cat.ProductByID(ctx, listing.ProductID)
	if err != nil {
		t.Fatalf("ProductByID() error = %v", err)
	}
	if product.NormalizedKey != "apple iphone 15 pro max 256gb" {
		t.Errorf("normalized key = %q", product.NormalizedKey)
	}
	if product.Brand != "Apple" {
		t.Errorf("brand = %q, want Apple", product.Brand)
	}
}

func TestResolve_SameKeyMergesAcrossStores(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	a := rawListing("Apple iPhone 15 Pro", f(24999))
	b := rawListing("apple  iphone 15 pro", f(25999))
	b.Source = "Game"
	b.URL = "https://www.game.co.za/p/iphone-15-pro"

	resA, err := r.Resolve(ctx, a, "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	resB, err := r.Resolve(ctx, b, "https://www.game.co.za")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if resA.ListingID == resB.ListingID {
		t.Error("expected distinct listings per store")
	}

	la, _ := cat.ListingByID(ctx, resA.ListingID)
	lb, _ := cat.ListingByID(ctx, resB.ListingID)
	if la.ProductID != lb.ProductID {
		t.Errorf("expected one canonical product, got %d and %d", la.ProductID, lb.ProductID)
	}
}

func TestResolve_IdempotentOnUnchangedPrice(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	raw := rawListing("Sony WH-1000XM5 Headphones", f(4999))

	first, err := r.Resolve(ctx, raw, "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve(ctx, raw, "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() second call error = %v", err)
	}

	if second.ListingID != first.ListingID {
		t.Errorf("expected one listing, got ids %d and %d", first.ListingID, second.ListingID)
	}
	n, err := cat.HistoryCount(ctx, first.ListingID)
	if err != nil {
		t.Fatalf("HistoryCount() error = %v", err)
	}
	if n != 0 {
		t.Errorf("expected no history entries for unchanged price, got %d", n)
	}
}

func TestResolve_PriceChangeAppendsHistory(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, rawListing("Sony WH-1000XM5 Headphones", f(4999)), "https://www.takealot.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	res, err := r.Resolve(ctx, rawListing("Sony WH-1000XM5 Headphones", f(4499)), "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() with new price error = %v", err)
	}

	if res.Price == nil || *res.Price != 4499 {
		t.Errorf("current price = %v, want 4499", res.Price)
	}

	history, err := cat.PriceHistory(ctx, res.ListingID, 10)
	if err != nil {
		t.Fatalf("PriceHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly 1 history entry, got %d", len(history))
	}
	if history[0].Price != 4999 {
		t.Errorf("history price = %v, want the prior price 4999", history[0].Price)
	}
}

func TestResolve_MissingPriceMarksUnavailable(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, rawListing("Dell XPS 15 Laptop", f(31999)), "https://www.takealot.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	res, err := r.Resolve(ctx, rawListing("Dell XPS 15 Laptop", nil), "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() without price error = %v", err)
	}

	if res.IsAvailable {
		t.Error("expected unavailable listing when no price extracted")
	}
	if res.Price == nil || *res.Price != 31999 {
		t.Errorf("stored price = %v, want last known 31999 (never zeroed)", res.Price)
	}

	n, _ := cat.HistoryCount(ctx, res.ListingID)
	if n != 0 {
		t.Errorf("expected no history for availability-only change, got %d", n)
	}
}

func TestResolve_NeverPricedListing(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, rawListing("Mystery Box Special", nil), "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Price != nil {
		t.Errorf("expected nil price, got %v", *res.Price)
	}
	if res.IsAvailable {
		t.Error("expected unpriced listing to be unavailable")
	}
}

func TestResolve_ConcurrentSameKey(t *testing.T) {
	r, cat := testResolver(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(ctx, rawListing("Concurrent Widget Deluxe", f(100)), "https://www.takealot.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Resolve() error = %v", err)
		}
	}

	res, err := r.Resolve(ctx, rawListing("Concurrent Widget Deluxe", f(100)), "https://www.takealot.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	n, _ := cat.HistoryCount(ctx, res.ListingID)
	if n != 0 {
		t.Errorf("expected no duplicate history under concurrency, got %d", n)
	}
}
