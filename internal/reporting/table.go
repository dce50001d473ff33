package reporting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
)

// TableReporter prints a human readable summary using go-pretty tables.
type TableReporter struct {
	w io.WriteCloser
}

// NewTableReporter takes ownership of w.
func NewTableReporter(w io.WriteCloser) *TableReporter {
	return &TableReporter{w: w}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func (r *TableReporter) Write(summary warranty.Summary) error {
	totals := newTable(r.w)
	totals.SetTitle(fmt.Sprintf("Warranty lookup %s", summary.RunID))
	totals.AppendHeader(table.Row{"Result", "Computers"})
	for _, result := range sortedResults(summary.Results) {
		totals.AppendRow(table.Row{result, summary.Results[result]})
	}
	totals.AppendFooter(table.Row{"Total", summary.Computers})
	totals.AppendFooter(table.Row{"Batches", summary.Batches})
	totals.AppendFooter(table.Row{"Elapsed", summary.Elapsed.Round(time.Second).String()})
	totals.Render()

	if len(summary.Failures) == 0 {
		return nil
	}
	failures := newTable(r.w)
	failures.SetTitle("Failed lookups")
	failures.AppendHeader(table.Row{"Serial number", "Product number", "Error"})
	for _, c := range summary.Failures {
		failures.AppendRow(table.Row{c.SerialNumber, c.ProductNumber, c.Error})
	}
	failures.Render()
	return nil
}

func (r *TableReporter) Close() error {
	return r.w.Close()
}

func sortedResults(results map[string]int) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
