// Package cli implements the sqlkit command-line interface: one-shot
// queries, an interactive REPL, the HTTP server, and run history.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/tylerbarker/sql-kit/internal/config"
	"github.com/tylerbarker/sql-kit/internal/history"
	"github.com/tylerbarker/sql-kit/pool"
	"github.com/tylerbarker/sql-kit/sqlfile"
)

// app carries the pieces commands share after configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the sqlkit command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	root := &cobra.Command{
		Use:           "sqlkit",
		Short:         "Execute parameterized SQL against pooled DuckDB or conventional SQL servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Logger()
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: sqlkit.yaml)")
	pf.String("database", "", "database location: DuckDB path, :memory:, or postgres:// URL")
	pf.Int("pool-size", 0, "pooled connection count")
	pf.Duration("pool-timeout", 0, "checkout timeout")
	pf.String("sql-dir", "", "SQL file library directory")
	pf.String("sql-mode", "", "SQL library mode: compiled or dynamic")
	pf.String("history-path", "", "query history SQLite path")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("output", "", "result format: table, json, csv, md, yaml")

	root.AddCommand(
		newQueryCmd(a),
		newREPLCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// openBackend resolves the configured database to a dispatchable backend:
// a *pool.Pool for embedded locations, or a *sql.DB over the pgx stdlib
// driver for postgres URLs. The cleanup function tears the backend down.
func (a *app) openBackend(ctx context.Context) (backend any, cleanup func(), err error) {
	if a.cfg.IsPostgres() {
		db, err := sql.Open("pgx", a.cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres backend: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres backend: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}

	p, err := pool.Start(ctx, pool.Config{
		Name:            "sqlkit",
		Location:        a.cfg.Database,
		Size:            a.cfg.Pool.Size,
		CheckoutTimeout: a.cfg.Pool.CheckoutTimeout,
		Setup:           a.cfg.Pool.Setup,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

// openPool is openBackend restricted to the embedded engine, for commands
// that need the pool itself (serve).
func (a *app) openPool(ctx context.Context) (*pool.Pool, error) {
	if a.cfg.IsPostgres() {
		return nil, fmt.Errorf("this command requires an embedded database, got %q", a.cfg.Database)
	}
	return pool.Start(ctx, pool.Config{
		Name:            "sqlkit",
		Location:        a.cfg.Database,
		Size:            a.cfg.Pool.Size,
		CheckoutTimeout: a.cfg.Pool.CheckoutTimeout,
		Setup:           a.cfg.Pool.Setup,
		Logger:          a.logger,
	})
}

// openLibrary builds the SQL file library in the configured mode. Compiled
// mode reads the directory once at open; dynamic mode re-reads per lookup.
func (a *app) openLibrary() (*sqlfile.Library, error) {
	if a.cfg.SQL.Mode == config.ModeDynamic {
		return sqlfile.Dynamic(a.cfg.SQL.Dir), nil
	}
	return sqlfile.Compiled(os.DirFS(a.cfg.SQL.Dir), ".")
}

// openHistory opens the run metastore. Failures degrade to no recording.
func (a *app) openHistory() *history.Store {
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		a.logger.Warn("query history disabled", "error", err)
		return nil
	}
	return store
}
