package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pable/go-smash-metrics/internal/fetchcache"
	"github.com/pable/go-smash-metrics/internal/startgg"
)

var (
	dbPath   string
	cacheDir string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "smashmetrics",
	Short: "start.gg tournament metrics tool",
	Long:  "Fetch start.gg tournament results and compute per-player performance metrics.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultDB := filepath.Join(configDir(), "index.db")
	defaultCache := filepath.Join(configDir(), "cache")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "path to SQLite index database")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache", defaultCache, "path to the response cache directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(tournamentsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(dropCmd)
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smashmetrics"
	}
	return filepath.Join(home, ".smashmetrics")
}

// buildLogger returns a console zap logger, debug-level when --verbose.
func buildLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// loadAPIToken returns the start.gg API token from the STARTGG_API_TOKEN
// environment variable or ~/.smashmetrics/startgg_token.
func loadAPIToken() (string, error) {
	if tok := os.Getenv("STARTGG_API_TOKEN"); tok != "" {
		return tok, nil
	}
	data, err := os.ReadFile(filepath.Join(configDir(), "startgg_token"))
	if err != nil {
		return "", fmt.Errorf("start.gg API token not found: set STARTGG_API_TOKEN or create %s",
			filepath.Join(configDir(), "startgg_token"))
	}
	return strings.TrimSpace(string(data)), nil
}

// newClient builds the API client with the shared cache, pacing, and
// logging wiring.
func newClient(log *zap.Logger, useCache, staleFallback bool) (*startgg.Client, error) {
	token, err := loadAPIToken()
	if err != nil {
		return nil, err
	}

	var cache *fetchcache.Store
	if useCache {
		cache, err = fetchcache.NewStore(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}

	return startgg.NewClient(startgg.Config{
		Token:         token,
		Cache:         cache,
		StaleFallback: staleFallback,
		Logger:        log,
	}), nil
}
