package pipeline

import (
	"fmt"
	"io"

	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/loader"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Report collects the outcome of one run.
type Report struct {
	RunID   string
	Mode    string
	Results []*loader.Result
	Summary *aggregate.Stats
	Dropped []string
}

func (r *Report) add(res *loader.Result) {
	if res != nil {
		r.Results = append(r.Results, res)
	}
}

// Failures returns every file that was rolled back.
func (r *Report) Failures() []*loader.FileError {
	var out []*loader.FileError
	for _, res := range r.Results {
		out = append(out, res.Failures...)
	}
	return out
}

// Failed reports whether any file was rolled back.
func (r *Report) Failed() bool {
	return len(r.Failures()) > 0
}

// Render writes the per-source counts as a table.
func (r *Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s %s", r.Mode, r.RunID))
	t.AppendHeader(table.Row{"Source", "Files", "Processed", "Skipped", "Failed", "Rows", "Rows skipped", "Duplicates"})

	var files, processed, skipped, failed, rows, rowsSkipped, dups int
	for _, res := range r.Results {
		source := res.Source
		if res.Missing {
			source += " (missing)"
		}
		t.AppendRow(table.Row{source, res.Discovered, res.Processed, res.AlreadyDone, res.Failed,
			res.Rows, res.RowsSkipped, res.Duplicates})
		files += res.Discovered
		processed += res.Processed
		skipped += res.AlreadyDone
		failed += res.Failed
		rows += res.Rows
		rowsSkipped += res.RowsSkipped
		dups += res.Duplicates
	}
	t.AppendFooter(table.Row{"Total", files, processed, skipped, failed, rows, rowsSkipped, dups})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if r.Summary != nil {
		fmt.Fprintf(w, "summary: %d entities, %d rows\n", r.Summary.Entities, r.Summary.Rows)
	}
	for _, name := range r.Dropped {
		fmt.Fprintf(w, "dropped %s\n", name)
	}
	for _, fe := range r.Failures() {
		fmt.Fprintf(w, "failed: %v\n", fe)
	}
}
