package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent query runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := a.openHistory()
			if store == nil {
				return fmt.Errorf("history store unavailable at %s", a.cfg.History.Path)
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"STARTED", "SOURCE", "STATUS", "ROWS", "MS", "SQL"})
			for _, run := range runs {
				query := run.SQL
				if len(query) > 60 {
					query = query[:60] + "..."
				}
				t.AppendRow(table.Row{
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Source, run.Status, run.Rows, run.DurationMS, query,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
