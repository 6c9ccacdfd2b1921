package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	sqlkit "github.com/tylerbarker/sql-kit"
	"github.com/tylerbarker/sql-kit/internal/history"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		input   string
		name    string
		noCache bool
		one     bool
		timeout time.Duration
		args    []string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Execute one SQL statement and render the result",
		Long: `Execute one SQL statement and render the result.

SQL comes from the argument, --input FILE, --name NAME (resolved through
the SQL file library), or stdin, in that priority order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			ctx := cmd.Context()

			query, err := a.resolveSQL(posArgs, input, name)
			if err != nil {
				return err
			}

			backend, cleanup, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts []sqlkit.QueryOption
			if noCache {
				opts = append(opts, sqlkit.WithoutCache())
			}
			if timeout > 0 {
				opts = append(opts, sqlkit.WithTimeout(timeout))
			}

			params := make([]any, len(args))
			for i, arg := range args {
				params[i] = arg
			}

			start := time.Now()
			res, err := sqlkit.Query(ctx, backend, query, params, opts...)
			if err == nil && one {
				_, err = res.OneRecord(sqlkit.WithDynamicColumns())
			}
			a.recordRun(ctx, "cli", query, res, time.Since(start), err)
			if err != nil {
				return err
			}

			if format == "" {
				format = a.cfg.Output
			}
			return renderResult(cmd.OutOrStdout(), res, format)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "read SQL from file")
	cmd.Flags().StringVar(&name, "name", "", "load SQL by name from the SQL file library")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the statement cache")
	cmd.Flags().BoolVar(&one, "one", false, "require exactly one result row")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "checkout timeout override")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "positional statement parameter (repeatable)")
	cmd.Flags().StringVar(&format, "format", "", "result format: table, json, csv, md, yaml")

	return cmd
}

// resolveSQL picks the SQL source: argument, --input file, --name library
// lookup, or stdin.
func (a *app) resolveSQL(posArgs []string, input, name string) (string, error) {
	switch {
	case len(posArgs) == 1 && posArgs[0] != "":
		return posArgs[0], nil
	case input != "":
		data, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", input, err)
		}
		return string(data), nil
	case name != "":
		lib, err := a.openLibrary()
		if err != nil {
			return "", err
		}
		return lib.Load(name)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		query := strings.TrimSpace(string(data))
		if query == "" {
			return "", fmt.Errorf("no SQL given: pass an argument, --input, --name, or pipe to stdin")
		}
		return query, nil
	}
}

// recordRun writes one entry to the history store; failures are logged,
// never returned.
func (a *app) recordRun(ctx context.Context, source, query string, res *sqlkit.QueryResult, duration time.Duration, queryErr error) {
	store := a.openHistory()
	if store == nil {
		return
	}
	defer store.Close()

	run := history.Run{
		Source:     source,
		SQL:        query,
		Backend:    a.cfg.Database,
		DurationMS: duration.Milliseconds(),
		Status:     "ok",
	}
	if res != nil {
		run.Rows = res.RowCount
	}
	if queryErr != nil {
		run.Status = "error"
		run.Error = queryErr.Error()
	}
	if err := store.Record(ctx, run); err != nil {
		a.logger.Warn("record query run", "error", err)
	}
}
