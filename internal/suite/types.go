package suite

import (
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Outcome is the terminal state of a case or a job.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
	OutcomeSkip Outcome = "SKIP"
	// OutcomeQuarantined and OutcomeCancelled only apply to jobs.
	OutcomeQuarantined Outcome = "QUARANTINED"
	OutcomeCancelled   Outcome = "CANCELLED"
)

// ErrCaseTimeout is wrapped into the diagnostic of a case that ran past its
// deadline.
var ErrCaseTimeout = errors.New("case timed out")

// Skip reasons.
const (
	ReasonFailFast  = "fail-fast"
	ReasonCancelled = "cancelled"
)

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Name     string        `json:"name" yaml:"name"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Diagnostic is set on FAIL only.
	Diagnostic string `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	// Reason explains a SKIP.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// JobResult is the outcome of one job.
type JobResult struct {
	JobID       string        `json:"jobId" yaml:"jobId"`
	Outcome     Outcome       `json:"outcome" yaml:"outcome"`
	Cases       []CaseResult  `json:"cases,omitempty" yaml:"cases,omitempty"`
	Diagnostic  string        `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	Environment string        `json:"environment,omitempty" yaml:"environment,omitempty"`
	Digest      string        `json:"digest,omitempty" yaml:"digest,omitempty"`
	Attempts    int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Counts tallies case outcomes.
func (r *JobResult) Counts() (pass, fail, skip int) {
	for _, c := range r.Cases {
		switch c.Outcome {
		case OutcomePass:
			pass++
		case OutcomeFail:
			fail++
		case OutcomeSkip:
			skip++
		}
	}
	return pass, fail, skip
}

// Options parameterize one suite run.
type Options struct {
	JobID string
	// Filter selects cases: empty or "*" for all, "tag:<feature>", a glob, or
	// a name substring. Comma separates alternatives.
	Filter string
	// Concurrency bounds simultaneously executing cases. Values below 1 mean 1.
	Concurrency int
	// Features are the capability switches of the job. A case requiring a
	// feature not in this set is skipped.
	Features sets.Set[string]
	FailFast bool
	// CaseTimeout applies to cases without their own timeout. Zero disables it.
	CaseTimeout time.Duration
}
