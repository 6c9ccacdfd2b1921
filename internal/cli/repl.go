package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	sqlkit "github.com/tylerbarker/sql-kit"
)

func newREPLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive SQL shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runREPL(cmd)
		},
	}
}

func (a *app) runREPL(cmd *cobra.Command) error {
	ctx := cmd.Context()

	backend, cleanup, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	historyFile := filepath.Join(os.TempDir(), "sqlkit_repl_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sqlkit> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "sqlkit REPL (database: %s)\n", a.cfg.Database)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	format := a.cfg.Output
	timer := false

	var buffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buffer.Reset()
			rl.SetPrompt("sqlkit> ")
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") && buffer.Len() == 0 {
			quit := a.handleDotCommand(ctx, out, backend, line, &format, &timer)
			if quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until a trailing semicolon.
		buffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buffer.WriteString(" ")
			rl.SetPrompt("   ...> ")
			continue
		}
		rl.SetPrompt("sqlkit> ")

		query := strings.TrimSuffix(buffer.String(), ";")
		buffer.Reset()

		start := time.Now()
		res, err := sqlkit.Query(ctx, backend, query, nil)
		elapsed := time.Since(start)
		a.recordRun(ctx, "repl", query, res, elapsed, err)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if err := renderResult(out, res, format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		if timer {
			_, _ = fmt.Fprintf(out, "Time: %s\n", elapsed)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

// handleDotCommand interprets a REPL dot-command, reporting whether the
// REPL should exit.
func (a *app) handleDotCommand(ctx context.Context, out io.Writer, backend any, line string, format *string, timer *bool) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		_, _ = fmt.Fprintln(out, "Commands:")
		_, _ = fmt.Fprintln(out, "  .tables        list tables")
		_, _ = fmt.Fprintln(out, "  .mode FORMAT   set output format (table, json, csv, md, yaml)")
		_, _ = fmt.Fprintln(out, "  .timer         toggle per-query timing")
		_, _ = fmt.Fprintln(out, "  .quit          exit")
		_, _ = fmt.Fprintln(out, "End SQL statements with a semicolon; statements may span lines.")

	case ".tables":
		res, err := sqlkit.Query(ctx, backend,
			"SELECT table_name FROM information_schema.tables ORDER BY table_name", nil)
		if err != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		_ = renderResult(out, res, *format)

	case ".mode":
		if len(parts) != 2 {
			_, _ = fmt.Fprintln(out, "Usage: .mode table|json|csv|md|yaml")
			break
		}
		*format = parts[1]
		_, _ = fmt.Fprintf(out, "Output format: %s\n", *format)

	case ".timer":
		*timer = !*timer
		_, _ = fmt.Fprintf(out, "Timer: %v\n", *timer)

	default:
		_, _ = fmt.Fprintf(out, "Unknown command %s (try .help)\n", parts[0])
	}
	return false
}
