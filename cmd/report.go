package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-smash-metrics/internal/pipeline"
	"github.com/pable/go-smash-metrics/internal/report"
	"github.com/pable/go-smash-metrics/internal/storage"
)

// report command flags.
var (
	// reportMonths is the lookback window in 30-day months.
	reportMonths int
	// reportCharacter scopes the character usage/win-rate columns.
	reportCharacter string
	// reportAssumeMain treats players with no target-character sets as
	// mains of the target character.
	reportAssumeMain bool
	// reportMinEntrants/reportMaxEntrants bound the average event size filter.
	reportMinEntrants float64
	reportMaxEntrants float64
	// reportActiveSince keeps only players active on/after this date (YYYY-MM-DD).
	reportActiveSince string
	// reportMinSets drops players with fewer decided sets.
	reportMinSets int
	// reportCSV writes the full metrics to this file instead of printing a table.
	reportCSV string
	// reportNoCache bypasses the response cache.
	reportNoCache bool
	// reportNoStore bypasses the SQLite index.
	reportNoStore bool
	// reportStaleOK serves expired cache entries when the API is down.
	reportStaleOK bool
)

// reportCmd is the cobra command running the full metrics pipeline.
var reportCmd = &cobra.Command{
	Use:   "report <state>",
	Short: "Compute player metrics for a state",
	Long: `Discovers recent tournaments in a US state, fetches their results,
and prints per-player performance metrics.

Examples:
  # Georgia players over the default 6-month window
  smashmetrics report GA

  # Fox players in Texas, assuming unreported players main Fox
  smashmetrics report TX --character Fox --assume-main

  # Full columns to a CSV for notebook analysis
  smashmetrics report GA --csv ga_players.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportMonths, "months", 6, "lookback window in months")
	reportCmd.Flags().StringVar(&reportCharacter, "character", "", "target character for usage/win-rate columns")
	reportCmd.Flags().BoolVar(&reportAssumeMain, "assume-main", false, "treat players with no target-character sets as target mains")
	reportCmd.Flags().Float64Var(&reportMinEntrants, "min-entrants", 0, "keep players whose average event size is at least this")
	reportCmd.Flags().Float64Var(&reportMaxEntrants, "max-entrants", 0, "keep players whose average event size is at most this")
	reportCmd.Flags().StringVar(&reportActiveSince, "active-since", "", "keep players active on/after this date (YYYY-MM-DD)")
	reportCmd.Flags().IntVar(&reportMinSets, "min-sets", 0, "keep players with at least this many decided sets")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "write full metrics to this CSV file")
	reportCmd.Flags().BoolVar(&reportNoCache, "no-cache", false, "bypass the response cache")
	reportCmd.Flags().BoolVar(&reportNoStore, "no-store", false, "bypass the SQLite index")
	reportCmd.Flags().BoolVar(&reportStaleOK, "stale-ok", false, "serve expired cache entries when the API is unreachable")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := buildLogger()
	defer log.Sync()

	opts := pipeline.Options{
		State:            args[0],
		MonthsBack:       reportMonths,
		TargetCharacter:  reportCharacter,
		AssumeTargetMain: reportAssumeMain,
		MinAvgEntrants:   reportMinEntrants,
		MaxAvgEntrants:   reportMaxEntrants,
		MinSets:          reportMinSets,
	}
	if reportActiveSince != "" {
		t, err := time.Parse("2006-01-02", reportActiveSince)
		if err != nil {
			return fmt.Errorf("%w: bad --active-since %q", pipeline.ErrConfiguration, reportActiveSince)
		}
		opts.ActiveSince = t
	}

	client, err := newClient(log, !reportNoCache, reportStaleOK)
	if err != nil {
		return err
	}

	var db *storage.DB
	if !reportNoStore {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
		db, err = storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer db.Close()
	}

	res, err := pipeline.New(client, db, log).Generate(cmd.Context(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("Tournaments: %d  Events: %d  Players: %d\n",
		res.Tournaments, res.Events, len(res.Players))
	if res.Skips.Total() > 0 {
		fmt.Fprintf(os.Stderr, "Skipped malformed units: %d events, %d entrants, %d sets\n",
			res.Skips.Events, res.Skips.Entrants, res.Skips.Sets)
	}
	if len(res.Players) == 0 {
		fmt.Println("No players matched the filters.")
		return nil
	}

	if reportCSV != "" {
		f, err := os.Create(reportCSV)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer f.Close()
		if err := report.WriteCSV(f, res.Players); err != nil {
			return err
		}
		fmt.Printf("Wrote %d players to %s\n", len(res.Players), reportCSV)
		return nil
	}

	fmt.Println()
	report.PrintPlayerTable(os.Stdout, res.Players, reportCharacter)
	return nil
}
