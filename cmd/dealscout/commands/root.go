// Package commands implements the CLI commands for dealscout.
package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealscout/dealscout/internal/catalog"
	"github.com/dealscout/dealscout/internal/harvest"
	"github.com/dealscout/dealscout/internal/logger"
	"github.com/dealscout/dealscout/internal/source"
)

var rootCmd = &cobra.Command{
	Use:   "dealscout",
	Short: "Price comparison harvester for South African storefronts",
	Long: `Dealscout searches storefronts for product listings, merges them into
a canonical product catalog, and tracks price changes over time.

Searches walk a tiered ladder: cached results, browser-driven fetches,
plain HTTP fetches, and finally a deterministic sample baseline, so a
query always returns something.

Examples:
  # Search every configured store
  dealscout search "iphone 15"

  # Search a single store
  dealscout search "galaxy s24" --source Takealot

  # Show the recorded price changes for a listing
  dealscout history 42`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.dealscout.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only show errors")
	rootCmd.PersistentFlags().String("db", "dealscout.db", "path to the catalog database")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().Duration("delay", time.Second, "delay between retries")
	rootCmd.PersistentFlags().Int("retries", 3, "attempts per static fetch")
	rootCmd.PersistentFlags().Int("max-pages", 3, "pagination limit for dynamic fetches")
	rootCmd.PersistentFlags().Int("max-per-page", 10, "listing cap per result page")
	rootCmd.PersistentFlags().Int("max-results", 50, "result cap per search")
	rootCmd.PersistentFlags().Duration("cache-ttl", 30*time.Minute, "how long search results stay cached")
	rootCmd.PersistentFlags().Duration("query-timeout", 60*time.Second, "deadline for the live tiers of one search")
	rootCmd.PersistentFlags().StringSlice("sources", nil, "store names to search (default: all built-in stores)")

	for _, name := range []string{
		"debug", "quiet", "db", "timeout", "delay", "retries",
		"max-pages", "max-per-page", "max-results", "cache-ttl",
		"query-timeout", "sources",
	} {
		key := strings.ReplaceAll(name, "-", "_")
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	// Local .env files are a convenience for development setups.
	_ = godotenv.Load()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".dealscout")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DEALSCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// Settings is the resolved runtime configuration, merged from flags, config
// file, and DEALSCOUT_* environment variables.
type Settings struct {
	DBPath       string        `mapstructure:"db" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Delay        time.Duration `mapstructure:"delay" validate:"gte=0"`
	Retries      int           `mapstructure:"retries" validate:"gte=1,lte=10"`
	MaxPages     int           `mapstructure:"max_pages" validate:"gte=1"`
	MaxPerPage   int           `mapstructure:"max_per_page" validate:"gte=1"`
	MaxResults   int           `mapstructure:"max_results" validate:"gte=1"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	Sources      []string      `mapstructure:"sources"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// loadSettings unmarshals and validates the merged configuration.
func loadSettings() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

func (s Settings) sourceConfig() source.Config {
	cfg := source.DefaultConfig()
	cfg.Timeout = s.Timeout
	cfg.Delay = s.Delay
	cfg.Retries = s.Retries
	cfg.MaxPages = s.MaxPages
	cfg.MaxPerPage = s.MaxPerPage
	cfg.MaxResults = s.MaxResults
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	return cfg
}

// buildAdapters instantiates one adapter per selected store profile.
func buildAdapters(s Settings) ([]source.Source, error) {
	profiles, err := source.Profiles()
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(s.Sources))
	for _, name := range s.Sources {
		selected[strings.ToLower(name)] = true
	}

	cfg := s.sourceConfig()
	var adapters []source.Source
	for _, p := range profiles {
		if len(selected) > 0 && !selected[strings.ToLower(p.Name)] {
			continue
		}
		a, err := source.NewAdapter(p, cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no stores match --sources %v", s.Sources)
	}
	return adapters, nil
}

// initRuntime wires the shared pieces every command needs.
func initRuntime() (Settings, *catalog.Catalog, error) {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	s, err := loadSettings()
	if err != nil {
		return Settings{}, nil, err
	}

	cat, err := catalog.Open(s.DBPath)
	if err != nil {
		return Settings{}, nil, err
	}
	return s, cat, nil
}

func orchestratorOptions(s Settings) harvest.Options {
	opts := harvest.DefaultOptions()
	opts.CacheTTL = s.CacheTTL
	opts.QueryTimeout = s.QueryTimeout
	opts.MaxResults = s.MaxResults
	return opts
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
