package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func fragment(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc.Selection
}

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	base, err := url.Parse("https://store.example")
	if err != nil {
		t.Fatal(err)
	}
	return &Extractor{
		BaseURL:            base,
		ProductPathMarkers: []string{"/product/", "/item/", "/p/"},
	}
}

// --- Locator Tests ---

func TestLocator_ByMarker(t *testing.T) {
	sel := fragment(t, `<div><h3 class="name">Widget Deluxe</h3><span>other</span></div>`)

	l := Locator{Kind: ByMarker, Selector: "h3.name"}
	found := l.Find(sel)
	if found.Length() != 1 {
		t.Fatalf("expected 1 match, got %d", found.Length())
	}
	if got := strings.TrimSpace(found.Text()); got != "Widget Deluxe" {
		t.Errorf("matched text = %q, want %q", got, "Widget Deluxe")
	}
}

func TestLocator_ByTextContains(t *testing.T) {
	sel := fragment(t, `<div><span>In stock</span><span>R 499.00</span></div>`)

	l := Locator{Kind: ByTextContains, Selector: "span", Substring: "R "}
	found := l.Find(sel)
	if found.Length() != 1 {
		t.Fatalf("expected 1 match, got %d", found.Length())
	}
}

func TestLocator_ByAttribute(t *testing.T) {
	sel := fragment(t, `<div><img src="a.jpg"><img data-src="b.jpg"></div>`)

	l := Locator{Kind: ByAttribute, Selector: "img", Attr: "data-src"}
	found := l.Find(sel)
	if found.Length() != 1 {
		t.Fatalf("expected 1 match, got %d", found.Length())
	}
	if v, _ := found.Attr("data-src"); v != "b.jpg" {
		t.Errorf("matched attr = %q, want %q", v, "b.jpg")
	}
}

// --- Field Tests ---

func TestTitle_FirstStrategyWins(t *testing.T) {
	sel := fragment(t, `<div><h3>Primary Title Here</h3><h4>Secondary Title</h4></div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByMarker, Selector: "h3"}},
		{Locator: Locator{Kind: ByMarker, Selector: "h4"}},
	}

	got, ok := e.Title(sel, strategies)
	if !ok {
		t.Fatal("expected a title")
	}
	if got != "Primary Title Here" {
		t.Errorf("Title() = %q, want %q", got, "Primary Title Here")
	}
}

func TestTitle_SkipsTooShortMatches(t *testing.T) {
	sel := fragment(t, `<div><h3>ad</h3><h4>Actual Product Name</h4></div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByMarker, Selector: "h3"}},
		{Locator: Locator{Kind: ByMarker, Selector: "h4"}},
	}

	got, ok := e.Title(sel, strategies)
	if !ok || got != "Actual Product Name" {
		t.Errorf("Title() = %q, %v; want fallthrough past short match", got, ok)
	}
}

func TestTitle_LastResortFirstLine(t *testing.T) {
	sel := fragment(t, "<div>Fallback Product Title\nR 129.00\nIn stock</div>")
	e := testExtractor(t)

	got, ok := e.Title(sel, nil)
	if !ok {
		t.Fatal("expected last-resort title")
	}
	if got != "Fallback Product Title" {
		t.Errorf("Title() = %q, want first line of text", got)
	}
}

func TestTitle_NothingUsable(t *testing.T) {
	sel := fragment(t, `<div>ad</div>`)
	e := testExtractor(t)

	if got, ok := e.Title(sel, nil); ok {
		t.Errorf("expected no title, got %q", got)
	}
}

func TestURL_RequiresProductPath(t *testing.T) {
	sel := fragment(t, `<div>
		<a href="/help/contact">Contact</a>
		<a href="/product/widget-123">Widget</a>
	</div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByAttribute, Selector: "a", Attr: "href"}, Value: "href"},
	}

	got, ok := e.URL(sel, strategies)
	if !ok {
		t.Fatal("expected a product URL")
	}
	if got != "https://store.example/product/widget-123" {
		t.Errorf("URL() = %q, want resolved product link", got)
	}
}

func TestURL_NoProductLink(t *testing.T) {
	sel := fragment(t, `<div><a href="/about">About</a></div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByAttribute, Selector: "a", Attr: "href"}, Value: "href"},
	}

	if got, ok := e.URL(sel, strategies); ok {
		t.Errorf("expected no URL, got %q", got)
	}
}

func TestPrice_StrategyThenFallback(t *testing.T) {
	e := testExtractor(t)
	strategies := []Strategy{
		{Locator: Locator{Kind: ByMarker, Selector: "span.price"}},
	}

	sel := fragment(t, `<div><span class="price">R 1,299.00</span></div>`)
	got, ok := e.Price(sel, strategies)
	if !ok || got != 1299.00 {
		t.Errorf("Price() = %v, %v; want 1299.00 via strategy", got, ok)
	}

	// No price element: fall back to the fragment's full text.
	sel = fragment(t, `<div>Widget Deluxe now R 899.00</div>`)
	got, ok = e.Price(sel, strategies)
	if !ok || got != 899.00 {
		t.Errorf("Price() = %v, %v; want 899.00 via text fallback", got, ok)
	}

	// Nothing price-like anywhere.
	sel = fragment(t, `<div>Out of stock</div>`)
	if got, ok = e.Price(sel, strategies); ok {
		t.Errorf("expected no price, got %v", got)
	}
}

func TestImage_SkipsDataURIs(t *testing.T) {
	sel := fragment(t, `<div>
		<img src="data:image/gif;base64,R0lGOD">
		<img src="/img/widget.jpg">
	</div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByAttribute, Selector: "img", Attr: "src"}, Value: "src"},
	}

	got, ok := e.Image(sel, strategies)
	if !ok {
		t.Fatal("expected an image URL")
	}
	if got != "https://store.example/img/widget.jpg" {
		t.Errorf("Image() = %q, want resolved image, not data URI", got)
	}
}

func TestImage_LazyLoadedAttribute(t *testing.T) {
	sel := fragment(t, `<div><img data-src="/img/lazy.jpg" src="data:image/gif;base64,x"></div>`)
	e := testExtractor(t)

	strategies := []Strategy{
		{Locator: Locator{Kind: ByAttribute, Selector: "img", Attr: "src"}, Value: "src"},
		{Locator: Locator{Kind: ByAttribute, Selector: "img", Attr: "data-src"}, Value: "data-src"},
	}

	got, ok := e.Image(sel, strategies)
	if !ok || got != "https://store.example/img/lazy.jpg" {
		t.Errorf("Image() = %q, %v; want lazy-load attribute fallback", got, ok)
	}
}
