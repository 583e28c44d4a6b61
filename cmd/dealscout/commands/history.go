package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealscout/dealscout/internal/logger"
)

// historyOutput is the printed shape of one listing's recorded price changes.
type historyOutput struct {
	ListingID    int64          `json:"listing_id"`
	Title        string         `json:"title"`
	Store        string         `json:"store"`
	CurrentPrice *float64       `json:"current_price,omitempty"`
	IsAvailable  bool           `json:"is_available"`
	History      []historyEntry `json:"history"`
}

type historyEntry struct {
	Price       float64   `json:"price"`
	IsAvailable bool      `json:"is_available"`
	RecordedAt  time.Time `json:"recorded_at"`
}

var historyCmd = &cobra.Command{
	Use:   "history <listing-id>",
	Short: "Show the recorded price changes for a listing",
	Long: `Print a listing's current state and its price history, newest first.
Each history entry is the price the listing held before a change.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 30, "maximum history entries to print")
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, cat, err := initRuntime()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return err
	}
	defer func() { _ = cat.Close() }()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid listing id %q", args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	listing, err := cat.ListingByID(ctx, id)
	if err != nil {
		logger.Error("failed to load listing", "id", id, "error", err)
		return err
	}
	store, err := cat.StoreByID(ctx, listing.StoreID)
	if err != nil {
		logger.Error("failed to load store", "id", listing.StoreID, "error", err)
		return err
	}
	entries, err := cat.PriceHistory(ctx, id, limit)
	if err != nil {
		logger.Error("failed to load price history", "id", id, "error", err)
		return err
	}

	out := historyOutput{
		ListingID:    listing.ID,
		Title:        listing.Title,
		Store:        store.Name,
		CurrentPrice: listing.CurrentPrice,
		IsAvailable:  listing.IsAvailable,
		History:      make([]historyEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.History = append(out.History, historyEntry{
			Price:       e.Price,
			IsAvailable: e.IsAvailable,
			RecordedAt:  e.RecordedAt,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
