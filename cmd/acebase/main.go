// Command acebase is a thin cobra CLI over the acebase root package,
// grounded on cmd/bd's subcommand-per-file layout (spec §2 "CLI").
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acebase-go/acebase"
	"github.com/acebase-go/acebase/internal/backend/dolt"
	"github.com/acebase-go/acebase/internal/backend/sqlite"
	"github.com/acebase-go/acebase/internal/config"
)

var (
	configPath string
	backend    string
	dsn        string
	debug      bool

	db *acebase.AceBase
)

var rootCmd = &cobra.Command{
	Use:   "acebase",
	Short: "Embedded hierarchical realtime database",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: memory|sqlite|dolt (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Backend DSN (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode (15-minute lock timeout)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		opened, err := openDB()
		if err != nil {
			return err
		}
		db = opened
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	}
}

// openDB loads config, applies flag overrides, and opens the selected
// backend (spec §4.1 "Backend selects a storage.Backend implementation").
func openDB() (*acebase.AceBase, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Backend = config.Backend(backend)
	}
	if dsn != "" {
		cfg.DSN = dsn
	}
	if debug {
		cfg.Debug = true
		cfg.LockTimeout = 15 * time.Minute
	}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return acebase.OpenMemory(cfg), nil
	case config.BackendSQLite:
		be, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return acebase.New(be, cfg), nil
	case config.BackendDolt:
		be, err := dolt.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open dolt backend: %w", err)
		}
		return acebase.New(be, cfg), nil
	default:
		return nil, fmt.Errorf("acebase: unknown backend %q", cfg.Backend)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "acebase:", err)
		os.Exit(1)
	}
}
