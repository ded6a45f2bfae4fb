package report

import (
	"fmt"
	"io"
	"strings"

	"relaymatrix/internal/matrix"
	"relaymatrix/internal/scheduler"
	"relaymatrix/internal/suite"
	pkgstrings "relaymatrix/pkg/strings"
)

// Console prints run progress for humans. It implements scheduler.Reporter
// and is safe for concurrent use as long as w serializes writes, which
// logging.Output does.
type Console struct {
	w       io.Writer
	verbose bool
}

// NewConsole creates a console reporter writing to w.
func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{w: w, verbose: verbose}
}

// RunStarted implements scheduler.Reporter.
func (c *Console) RunStarted(runID string, jobs []matrix.Job) {
	c.printf("🧪 Starting run %s with %d job(s)\n", runID, len(jobs))
	if c.verbose {
		for _, j := range jobs {
			c.printf("   • %s (%s)\n", j.ID, j.EnvironmentRef)
		}
	}
}

// JobStateChanged implements scheduler.Reporter. Only verbose consoles show
// intermediate states.
func (c *Console) JobStateChanged(job matrix.Job, from, to scheduler.JobState) {
	if !c.verbose || scheduler.IsTerminal(to) {
		return
	}
	c.printf("🔄 %s: %s → %s\n", job.ID, from, to)
}

// JobFinished implements scheduler.Reporter. Each job is a single line so
// concurrent workers never interleave partial output.
func (c *Console) JobFinished(job matrix.Job, result *suite.JobResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%v)", Symbol(result.Outcome), job.ID, result.Duration.Round(millisecond))
	if result.Outcome != suite.OutcomePass && result.Diagnostic != "" {
		fmt.Fprintf(&b, ": %s", result.Diagnostic)
	}
	b.WriteString("\n")

	if c.verbose || result.Outcome == suite.OutcomeFail {
		for _, cr := range result.Cases {
			if !c.verbose && cr.Outcome != suite.OutcomeFail {
				continue
			}
			fmt.Fprintf(&b, "   %s %s (%v)", Symbol(cr.Outcome), cr.Name, cr.Duration.Round(millisecond))
			switch {
			case cr.Diagnostic != "":
				fmt.Fprintf(&b, ": %s", pkgstrings.FirstLine(cr.Diagnostic))
			case cr.Reason != "":
				fmt.Fprintf(&b, ": %s", cr.Reason)
			}
			b.WriteString("\n")
		}
	}
	c.printf("%s", b.String())
}

// RunFinished implements scheduler.Reporter.
func (c *Console) RunFinished(r *scheduler.RunReport) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n🏁 Run %s complete\n", r.RunID)
	fmt.Fprintf(&b, "⏱️  Duration: %v\n", r.Duration.Round(millisecond))
	fmt.Fprintf(&b, "📊 Results:\n")
	fmt.Fprintf(&b, "   ✅ Passed: %d\n", r.Totals.Passed)
	if r.Totals.Failed > 0 {
		fmt.Fprintf(&b, "   ❌ Failed: %d\n", r.Totals.Failed)
	}
	if r.Totals.Quarantined > 0 {
		fmt.Fprintf(&b, "   🚧 Quarantined: %d\n", r.Totals.Quarantined)
	}
	if r.Totals.Cancelled > 0 {
		fmt.Fprintf(&b, "   ⛔ Cancelled: %d\n", r.Totals.Cancelled)
	}
	fmt.Fprintf(&b, "   📈 Total: %d\n", r.Totals.Jobs)

	switch {
	case r.Cancelled:
		b.WriteString("\n⛔ Run cancelled\n")
	case r.Success:
		b.WriteString("\n🎉 All jobs passed!\n")
	default:
		b.WriteString("\n💔 Some jobs failed\n")
	}
	c.printf("%s", b.String())
}

func (c *Console) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.w, format, args...)
}

// Symbol returns the display symbol for an outcome.
func Symbol(o suite.Outcome) string {
	switch o {
	case suite.OutcomePass:
		return "✅"
	case suite.OutcomeFail:
		return "❌"
	case suite.OutcomeSkip:
		return "⏭️"
	case suite.OutcomeQuarantined:
		return "🚧"
	case suite.OutcomeCancelled:
		return "⛔"
	default:
		return "❓"
	}
}
