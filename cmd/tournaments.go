package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-smash-metrics/internal/report"
	"github.com/pable/go-smash-metrics/internal/storage"
)

// tournamentsCmd lists everything in the local index.
var tournamentsCmd = &cobra.Command{
	Use:   "tournaments",
	Short: "List indexed tournaments",
	Args:  cobra.NoArgs,
	RunE:  runTournaments,
}

func runTournaments(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	list, err := db.ListTournaments()
	if err != nil {
		return fmt.Errorf("list tournaments: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No tournaments indexed yet. Run 'smashmetrics sync <state>' first.")
		return nil
	}

	report.PrintTournamentTable(os.Stdout, list)
	return nil
}
