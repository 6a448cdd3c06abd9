package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"slotledger/internal/backend"
	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/ledger"
	"slotledger/internal/log"
	"slotledger/internal/query"
	"slotledger/internal/transfer"
)

var (
	flagDB      string
	flagCatalog string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "slotctl",
	Short:         "Administer a slotledger SQLite database",
	Long:          "Inspect and adjust budget slots directly in the slotledger SQLite database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	defaultDB := os.Getenv("SQLITE_DB_PATH")
	if defaultDB == "" {
		defaultDB = "./data/slotledger.db"
	}
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", defaultDB, "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&flagCatalog, "catalog", os.Getenv("CATALOG_FILE"), "Slot catalog TOML file (built-in when empty)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log ledger operations to stderr")
}

// ledgerEnv bundles everything a command needs to touch the ledger.
type ledgerEnv struct {
	store   ledger.Store
	engine  *transfer.Engine
	query   *query.Facade
	catalog *catalog.Catalog
	close   func() error
}

func openLedger(ctx context.Context) (*ledgerEnv, error) {
	logger := log.Discard()
	if flagVerbose {
		cfg := log.DefaultConfig()
		cfg.Output = os.Stderr
		cfg.Level = log.ParseLevel("debug")
		logger = log.New(cfg)
	}

	cat, err := catalog.Load(flagCatalog)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backend.Config{
		Type:         backend.SQLiteBackend,
		SQLiteDBPath: flagDB,
	})
	if err != nil {
		return nil, err
	}
	return &ledgerEnv{
		store:   res.Store,
		engine:  transfer.New(res.Store, cat, transfer.WithLogger(logger)),
		query:   query.New(res.Store, cat),
		catalog: cat,
		close:   res.Cleanup,
	}, nil
}

// withLedger opens the ledger for the duration of fn.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, env *ledgerEnv) error) error {
	ctx := cmd.Context()
	env, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer env.close()
	return fn(ctx, env)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func parseAccountID(s string) (core.AccountID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return core.AccountID(id), nil
}

// parseSlotID accepts a numeric id or "uncategorized".
func parseSlotID(s string) (core.SlotID, error) {
	if s == "uncategorized" {
		return core.UncategorizedSlotID, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || (id <= 0 && core.SlotID(id) != core.UncategorizedSlotID) {
		return 0, fmt.Errorf("invalid slot id %q", s)
	}
	return core.SlotID(id), nil
}
