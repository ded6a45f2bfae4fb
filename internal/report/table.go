package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"relaymatrix/internal/scheduler"
	"relaymatrix/internal/suite"
	pkgstrings "relaymatrix/pkg/strings"
)

const millisecond = time.Millisecond

// TableOptions control the summary table.
type TableOptions struct {
	// Color enables ANSI colors. Callers enable it for terminals only.
	Color bool
}

// WriteSummary renders one row per job in dispatch order.
func WriteSummary(w io.Writer, r *scheduler.RunReport, opts TableOptions) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := func(s string) interface{} {
		if opts.Color {
			return text.FgHiCyan.Sprint(s)
		}
		return s
	}
	t.AppendHeader(table.Row{
		header("JOB"),
		header("ENVIRONMENT"),
		header("OUTCOME"),
		header("CASES (P/F/S)"),
		header("ATTEMPTS"),
		header("DURATION"),
		header("DIAGNOSTIC"),
	})

	for _, j := range r.Jobs {
		pass, fail, skip := j.Counts()
		t.AppendRow(table.Row{
			j.JobID,
			j.Environment,
			outcomeCell(j.Outcome, opts.Color),
			fmt.Sprintf("%d/%d/%d", pass, fail, skip),
			j.Attempts,
			j.Duration.Round(millisecond),
			pkgstrings.Truncate(pkgstrings.FirstLine(j.Diagnostic), pkgstrings.DiagnosticMaxLen),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d job(s)", r.Totals.Jobs),
		"",
		footerOutcome(r),
		"",
		"",
		r.Duration.Round(millisecond),
		"",
	})
	t.Render()
}

func outcomeCell(o suite.Outcome, color bool) string {
	s := fmt.Sprintf("%s %s", Symbol(o), o)
	if !color {
		return s
	}
	switch o {
	case suite.OutcomePass:
		return text.FgGreen.Sprint(s)
	case suite.OutcomeFail:
		return text.FgRed.Sprint(s)
	default:
		return text.FgYellow.Sprint(s)
	}
}

func footerOutcome(r *scheduler.RunReport) string {
	switch {
	case r.Cancelled:
		return "CANCELLED"
	case r.Success:
		return "SUCCESS"
	default:
		return "FAILURE"
	}
}
