package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pable/go-smash-metrics/internal/pipeline"
	"github.com/pable/go-smash-metrics/internal/storage"
)

// sync command flags.
var (
	// syncMonths is the lookback window in 30-day months.
	syncMonths int
	// syncStaleOK serves expired cache entries when the API is down.
	syncStaleOK bool
)

// syncCmd warms the SQLite index without aggregating anything.
var syncCmd = &cobra.Command{
	Use:   "sync <state>",
	Short: "Fetch and index recent tournaments for a state",
	Long: `Discovers recent tournaments in a US state and stores their full
results in the local SQLite index, so later report runs work offline.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncMonths, "months", 6, "lookback window in months")
	syncCmd.Flags().BoolVar(&syncStaleOK, "stale-ok", false, "serve expired cache entries when the API is unreachable")
}

func runSync(cmd *cobra.Command, args []string) error {
	log := buildLogger()
	defer log.Sync()

	client, err := newClient(log, true, syncStaleOK)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	tournaments, events, err := pipeline.New(client, db, log).Sync(cmd.Context(), pipeline.Options{
		State:      args[0],
		MonthsBack: syncMonths,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Synced %s: %d tournaments, %d events indexed\n", args[0], tournaments, events)
	return nil
}
