package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-smash-metrics/internal/storage"
)

// summaryCmd is the cobra command for displaying a high-level index overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the index",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	tournaments, events, payloads, err := db.Counts()
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if tournaments == 0 {
		fmt.Fprintln(os.Stdout, "Index is empty. Run 'smashmetrics sync <state>' to populate it.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n=== Index Summary ===\n\n")
	fmt.Fprintf(os.Stdout, "  Tournaments     : %d\n", tournaments)
	fmt.Fprintf(os.Stdout, "  Events          : %d\n", events)
	fmt.Fprintf(os.Stdout, "  Cached payloads : %d\n", payloads)
	fmt.Fprintf(os.Stdout, "  Database        : %s\n", dbPath)
	fmt.Fprintf(os.Stdout, "  Response cache  : %s\n", cacheDir)
	return nil
}
