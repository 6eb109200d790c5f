package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/runner"
	"jobvyne-crawler/internal/store"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderReports(w io.Writer, reports []runner.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Employer", "Status", "Discovered", "Items", "Created", "Updated", "Closed", "Unresolved", "Errors", "Took"})
	for _, r := range reports {
		t.AppendRow(table.Row{
			r.Employer,
			r.Status(),
			r.Discovered,
			r.Items,
			r.Summary.Created,
			r.Summary.Updated,
			r.Summary.Closed,
			r.Summary.Unresolved,
			len(r.Errors()),
			r.Duration().Round(time.Millisecond),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Discovered", Align: text.AlignRight},
		{Name: "Items", Align: text.AlignRight},
		{Name: "Created", Align: text.AlignRight},
		{Name: "Updated", Align: text.AlignRight},
		{Name: "Closed", Align: text.AlignRight},
	})
	t.Render()
}

// renderErrors lists run failures and per-task errors, capped per employer.
func renderErrors(w io.Writer, reports []runner.Report, max int) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Employer", "Where", "Error"})
	rows := 0
	for _, r := range reports {
		if r.Err != nil {
			t.AppendRow(table.Row{r.Employer, "run", r.Err.Error()})
			rows++
		}
		errs := r.Errors()
		for i, e := range errs {
			if i == max {
				t.AppendRow(table.Row{r.Employer, "", fmt.Sprintf("... %d more", len(errs)-max)})
				break
			}
			where := e.URL
			if where == "" {
				where = "department " + e.Department
			}
			t.AppendRow(table.Row{r.Employer, where, e.Err})
			rows++
		}
	}
	if rows > 0 {
		t.Render()
	}
}

func renderEmployers(w io.Writer, entries []adapter.Entry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Family", "Adapter", "Concurrency", "URL"})
	for _, e := range entries {
		url := e.Spec.URL
		if url == "" {
			url = e.Spec.BaseURL
		}
		t.AppendRow(table.Row{e.Spec.ID, e.Spec.Name, e.Spec.Family, e.Adapter.Name(), e.Concurrency, url})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d active", len(entries))})
	t.Render()
}

func renderRuns(w io.Writer, runs []store.RunRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Started", "Employer", "Created", "Updated", "Closed", "Task Errors", "Skip Close", "Dry Run", "Error"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.StartedAt.Local().Format(time.DateTime),
			r.Employer,
			r.Created,
			r.Updated,
			r.Closed,
			r.TaskErrors + r.DiscoveryErrors,
			r.SkipClose,
			r.DryRun,
			text.Trim(r.Error, 80),
		})
	}
	t.Render()
}
