package source

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dealscout/dealscout/internal/extract"
)

// Profile declares everything store-specific about harvesting one storefront:
// where to search, how to recognize product cards, and the ordered extraction
// strategies per field.
type Profile struct {
	Name       string `yaml:"name"`
	BaseURL    string `yaml:"base_url"`
	SearchPath string `yaml:"search_path"` // format string taking the escaped query
	PageParam  string `yaml:"page_param"`

	ProductPathMarkers []string `yaml:"product_path_markers"`
	MaxPerPage         int      `yaml:"max_per_page"`

	// Containers locate product cards, tried in order of decreasing fidelity.
	Containers []extract.Locator `yaml:"containers"`

	// Per-field extraction strategies.
	Title []extract.Strategy `yaml:"title"`
	URL   []extract.Strategy `yaml:"url"`
	Price []extract.Strategy `yaml:"price"`
	Image []extract.Strategy `yaml:"image"`

	// Dynamic-session auxiliaries.
	ConsentSelectors []string `yaml:"consent_selectors"`
	ConsentTexts     []string `yaml:"consent_texts"`
	Pagination       []string `yaml:"pagination"` // selectors, %d = page number
}

//go:embed profiles.yaml
var profilesYAML []byte

// Profiles returns the built-in store profiles.
func Profiles() ([]Profile, error) {
	var profiles []Profile
	if err := yaml.Unmarshal(profilesYAML, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse store profiles: %w", err)
	}
	return profiles, nil
}

// ProfileByName looks up a built-in profile, case-sensitively by store name.
func ProfileByName(name string) (Profile, error) {
	profiles, err := Profiles()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown store: %s", name)
}
