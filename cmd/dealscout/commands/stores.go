package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealscout/dealscout/internal/logger"
	"github.com/dealscout/dealscout/internal/source"
)

// storeInfo summarizes one built-in store profile.
type storeInfo struct {
	Name       string `json:"name"`
	BaseURL    string `json:"base_url"`
	SearchPath string `json:"search_path"`
	Paginated  bool   `json:"paginated"`
}

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List the built-in store profiles",
	RunE:  runStores,
}

func init() {
	rootCmd.AddCommand(storesCmd)
}

func runStores(cmd *cobra.Command, args []string) error {
	profiles, err := source.Profiles()
	if err != nil {
		logger.Error("failed to load store profiles", "error", err)
		return err
	}

	infos := make([]storeInfo, 0, len(profiles))
	for _, p := range profiles {
		infos = append(infos, storeInfo{
			Name:       p.Name,
			BaseURL:    p.BaseURL,
			SearchPath: p.SearchPath,
			Paginated:  p.PageParam != "" || len(p.Pagination) > 0,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}
