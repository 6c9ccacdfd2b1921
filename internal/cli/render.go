package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	sqlkit "github.com/tylerbarker/sql-kit"
)

// renderResult writes a QueryResult in the requested format: table
// (default), json, csv, md, or yaml.
func renderResult(w io.Writer, res *sqlkit.QueryResult, format string) error {
	switch format {
	case "json":
		return renderJSON(w, res)
	case "csv":
		return renderCSV(w, res)
	case "md", "markdown":
		return renderStyled(w, res, true)
	case "yaml", "yml":
		return renderYAML(w, res)
	default:
		return renderStyled(w, res, false)
	}
}

func renderStyled(w io.Writer, res *sqlkit.QueryResult, markdown bool) error {
	if res.RowCount == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range res.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		t.AppendRow(out)
	}

	if markdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", res.RowCount)
	return err
}

func renderJSON(w io.Writer, res *sqlkit.QueryResult) error {
	records, err := res.Records(sqlkit.WithDynamicColumns())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func renderYAML(w io.Writer, res *sqlkit.QueryResult) error {
	records, err := res.Records(sqlkit.WithDynamicColumns())
	if err != nil {
		return err
	}
	return yaml.NewEncoder(w).Encode(records)
}

func renderCSV(w io.Writer, res *sqlkit.QueryResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return err
	}
	for _, row := range res.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case *big.Int:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
