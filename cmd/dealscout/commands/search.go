package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dealscout/dealscout/internal/cache"
	"github.com/dealscout/dealscout/internal/harvest"
	"github.com/dealscout/dealscout/internal/logger"
	"github.com/dealscout/dealscout/internal/resolver"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the configured stores for a product",
	Long: `Search every configured store (or one, with --source) and print the
resolved listings as JSON.

Examples:
  dealscout search "iphone 15 pro"
  dealscout search "galaxy s24" --source Takealot
  dealscout search "macbook" --attempts 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	flags := searchCmd.Flags()
	flags.StringP("source", "s", "", "search a single store by name")
	flags.Int("attempts", 1, "re-run the search ladder up to this many times if it yields nothing")
	flags.StringP("output", "o", "", "output file (default: stdout)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, cat, err := initRuntime()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return err
	}
	defer func() { _ = cat.Close() }()

	adapters, err := buildAdapters(s)
	if err != nil {
		logger.Error("failed to build store adapters", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	query := strings.Join(args, " ")
	sourceName, _ := cmd.Flags().GetString("source")
	attempts, _ := cmd.Flags().GetInt("attempts")

	o := harvest.New(adapters, resolver.New(cat), cat, cache.New(), orchestratorOptions(s))

	var resp *harvest.Response
	switch {
	case sourceName != "":
		resp, err = o.SearchSource(ctx, sourceName, query, "")
	case attempts > 1:
		resp, err = o.SearchWithRetries(ctx, query, "", attempts)
	default:
		resp, err = o.SearchAllSources(ctx, query, "")
	}
	if err != nil {
		logger.Error("search failed", "query", query, "error", err)
		return err
	}

	out := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
