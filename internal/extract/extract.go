// Package extract pulls structured listing fields out of unstructured
// storefront markup using ordered fallback strategies.
//
// Every field is extracted the same way: an ordered list of strategies is
// tried against a markup fragment and the first result that passes the
// field's shape check wins. A markup change on the source site therefore
// degrades one field's accuracy instead of aborting extraction.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealscout/dealscout/internal/price"
)

// Locator kinds. A locator is a tagged variant so per-store extraction rules
// can be declared in configuration instead of code.
const (
	ByMarker       = "marker" // CSS selector match
	ByTextContains = "text"   // elements whose text contains a substring
	ByAttribute    = "attr"   // elements carrying a given attribute
)

// Locator finds candidate elements within a fragment.
type Locator struct {
	Kind      string `yaml:"kind"`
	Selector  string `yaml:"selector,omitempty"`
	Substring string `yaml:"substring,omitempty"`
	Attr      string `yaml:"attr,omitempty"`
}

// Find returns the elements the locator matches within sel.
func (l Locator) Find(sel *goquery.Selection) *goquery.Selection {
	selector := l.Selector
	if selector == "" {
		selector = "*"
	}

	found := sel.Find(selector)

	switch l.Kind {
	case ByTextContains:
		return found.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), l.Substring)
		})
	case ByAttribute:
		return found.FilterFunction(func(_ int, s *goquery.Selection) bool {
			_, ok := s.Attr(l.Attr)
			return ok
		})
	default: // ByMarker
		return found
	}
}

// Strategy pairs a locator with an accessor. An empty Value reads the
// element's text; otherwise Value names the attribute to read.
type Strategy struct {
	Locator `yaml:",inline"`
	Value   string `yaml:"value,omitempty"`
}

func (s Strategy) read(el *goquery.Selection) string {
	if s.Value == "" {
		return strings.TrimSpace(el.Text())
	}
	v, _ := el.Attr(s.Value)
	return strings.TrimSpace(v)
}

// Extractor resolves relative URLs and validates product paths for one store.
type Extractor struct {
	BaseURL            *url.URL
	ProductPathMarkers []string // path segments that identify product pages
}

// first tries each strategy in order and returns the first extracted value
// accepted by valid.
func (e *Extractor) first(sel *goquery.Selection, strategies []Strategy, valid func(string) (string, bool)) (string, bool) {
	for _, st := range strategies {
		matches := st.Find(sel)
		for i := 0; i < matches.Length(); i++ {
			if v, ok := valid(st.read(matches.Eq(i))); ok {
				return v, true
			}
		}
	}
	return "", false
}

// Title extracts a listing title. Falls back to the first line of the
// fragment's text when no strategy matches.
func (e *Extractor) Title(sel *goquery.Selection, strategies []Strategy) (string, bool) {
	if v, ok := e.first(sel, strategies, validTitle); ok {
		return v, true
	}

	// Last resort: the card's own text, first line only.
	text := strings.TrimSpace(sel.Text())
	if line, _, found := strings.Cut(text, "\n"); found {
		text = line
	}
	return validTitle(text)
}

func validTitle(v string) (string, bool) {
	v = strings.Join(strings.Fields(v), " ")
	if len(v) <= 3 {
		return "", false
	}
	return v, true
}

// URL extracts a product page link, resolved against the store base URL. Only
// links into a recognized product path are accepted.
func (e *Extractor) URL(sel *goquery.Selection, strategies []Strategy) (string, bool) {
	return e.first(sel, strategies, func(v string) (string, bool) {
		resolved, ok := e.resolve(v)
		if !ok {
			return "", false
		}
		if !e.onProductPath(resolved) {
			return "", false
		}
		return resolved, true
	})
}

// Price extracts a numeric price. Falls back to parsing the fragment's full
// text when no strategy yields a parseable amount.
func (e *Extractor) Price(sel *goquery.Selection, strategies []Strategy) (float64, bool) {
	var parsed float64
	_, ok := e.first(sel, strategies, func(v string) (string, bool) {
		p, ok := price.Parse(v)
		if !ok {
			return "", false
		}
		parsed = p
		return v, true
	})
	if ok {
		return parsed, true
	}

	return price.Parse(sel.Text())
}

// Image extracts an image URL, skipping inline data-URI placeholders.
func (e *Extractor) Image(sel *goquery.Selection, strategies []Strategy) (string, bool) {
	return e.first(sel, strategies, func(v string) (string, bool) {
		if v == "" || strings.HasPrefix(v, "data:") {
			return "", false
		}
		return e.resolve(v)
	})
}

// ProductLink resolves a raw href and accepts it only if it points into a
// recognized product path. Used when the fragment itself is the anchor.
func (e *Extractor) ProductLink(href string) (string, bool) {
	resolved, ok := e.resolve(href)
	if !ok || !e.onProductPath(resolved) {
		return "", false
	}
	return resolved, true
}

// resolve makes v absolute against the store base URL.
func (e *Extractor) resolve(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() && e.BaseURL != nil {
		u = e.BaseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func (e *Extractor) onProductPath(link string) bool {
	if len(e.ProductPathMarkers) == 0 {
		return true
	}
	for _, marker := range e.ProductPathMarkers {
		if strings.Contains(link, marker) {
			return true
		}
	}
	return false
}
