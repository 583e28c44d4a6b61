package harvest

import (
	"strings"

	"github.com/dealscout/dealscout/internal/source"
)

// storeURLs maps the built-in store names to their base addresses, for
// synthetic listings that never went through an adapter.
var storeURLs = map[string]string{
	"Takealot": "https://www.takealot.com",
	"Game":     "https://www.game.co.za",
	"Makro":    "https://www.makro.co.za",
}

func synthetic(title, path string, amount float64, store string) source.RawListing {
	base := storeURLs[store]
	return source.RawListing{
		Title:           title,
		URL:             base + path,
		Price:           &amount,
		ImageURL:        "https://via.placeholder.com/300x300",
		SourceListingID: strings.TrimPrefix(path, "/"),
		Source:          store,
	}
}

// baselineSets holds deterministic representative listings per keyword. They
// keep the pipeline and its consumers exercisable when every live tier
// fails, e.g. with all network access disabled.
var baselineSets = map[string][]source.RawListing{
	"iphone": {
		synthetic("Apple iPhone 15 Pro Max 256GB - Natural Titanium", "/iphone-15-pro-max-256gb", 24999.00, "Takealot"),
		synthetic("Apple iPhone 15 Pro Max 256GB Natural Titanium", "/iphone-15-pro-max-256gb", 25999.00, "Game"),
		synthetic("iPhone 15 Pro Max 256GB Natural Titanium", "/iphone-15-pro-max-256gb", 24499.00, "Makro"),
	},
	"samsung": {
		synthetic("Samsung Galaxy S24 Ultra 512GB - Titanium Black", "/samsung-galaxy-s24-ultra-512gb", 22999.00, "Takealot"),
		synthetic("Samsung Galaxy S24 Ultra 512GB Titanium Black", "/samsung-galaxy-s24-ultra-512gb", 23999.00, "Game"),
		synthetic("Galaxy S24 Ultra 512GB Titanium Black", "/samsung-galaxy-s24-ultra-512gb", 22499.00, "Makro"),
	},
	"laptop": {
		synthetic("Dell XPS 15 9530 Laptop - Intel i7, 16GB RAM, 512GB SSD", "/dell-xps-15-9530-laptop", 32999.00, "Takealot"),
		synthetic("Dell XPS 15 9530 Intel i7 16GB 512GB SSD", "/dell-xps-15-9530-laptop", 33999.00, "Game"),
		synthetic("Dell XPS 15 9530 Laptop Intel i7 16GB 512GB", "/dell-xps-15-9530-laptop", 31999.00, "Makro"),
	},
	"macbook": {
		synthetic("Apple MacBook Pro 14-inch M3 Chip 8GB RAM 512GB SSD", "/macbook-pro-14-inch-m3", 29999.00, "Takealot"),
		synthetic("MacBook Pro 14-inch M3 8GB 512GB SSD Space Gray", "/macbook-pro-14-inch-m3", 30999.00, "Game"),
		synthetic("MacBook Pro 14-inch M3 8GB 512GB Space Gray", "/macbook-pro-14-inch-m3", 28999.00, "Makro"),
	},
	"sony": {
		synthetic("Sony WH-1000XM5 Wireless Noise Cancelling Headphones", "/sony-wh-1000xm5-headphones", 4999.00, "Takealot"),
		synthetic("Sony WH-1000XM5 Noise Cancelling Wireless Headphones", "/sony-wh-1000xm5-headphones", 5199.00, "Game"),
		synthetic("Sony WH-1000XM5 Wireless Noise Cancelling Headphones Black", "/sony-wh-1000xm5-headphones", 4799.00, "Makro"),
	},
}

// Baseline returns the deterministic synthetic listings for a query, keyed by
// keyword match. Queries matching nothing get the default electronics set, so
// the baseline tier never produces an empty response.
func Baseline(query string) []source.RawListing {
	lower := strings.ToLower(query)

	var matched []source.RawListing
	for keyword, listings := range baselineSets {
		if strings.Contains(lower, keyword) {
			matched = append(matched, listings...)
		}
	}
	if len(matched) == 0 {
		matched = append(matched, baselineSets["iphone"]...)
	}
	return matched
}

// StoreURL returns the base address for a built-in store name, or "" when
// unknown.
func StoreURL(name string) string {
	return storeURLs[name]
}
