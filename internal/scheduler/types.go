package scheduler

import (
	"context"
	"errors"
	"time"

	"relaymatrix/internal/environment"
	"relaymatrix/internal/matrix"
	"relaymatrix/internal/quarantine"
	"relaymatrix/internal/suite"
)

// ErrRunCancelled marks a report whose run was interrupted.
var ErrRunCancelled = errors.New("run cancelled")

// SuiteRunner executes a job's cases against its environment.
type SuiteRunner interface {
	Run(ctx context.Context, env *environment.Environment, opts suite.Options) *suite.JobResult
}

// QuarantineSource is consulted before each job is dispatched.
type QuarantineSource interface {
	Lookup(jobID string) (quarantine.Entry, bool)
}

// Reporter observes a run. Methods may be called from several workers at
// once.
type Reporter interface {
	RunStarted(runID string, jobs []matrix.Job)
	JobStateChanged(job matrix.Job, from, to JobState)
	JobFinished(job matrix.Job, result *suite.JobResult)
	RunFinished(report *RunReport)
}

// Options configure a Scheduler.
type Options struct {
	// Parallel bounds the jobs in flight. Values below 1 mean 1.
	Parallel int

	// AcquireRetries is the number of re-attempts after a transient
	// acquisition failure. Suite runs are never retried.
	AcquireRetries int
	RetryDelay     time.Duration
	// AcquireTimeout bounds a single acquisition attempt. Zero disables it.
	AcquireTimeout time.Duration
	ReleaseTimeout time.Duration

	// Overrides applied to every job. Zero values keep the job's own setting.
	Filter          string
	CaseConcurrency int
	FailFast        bool
	CaseTimeout     time.Duration

	Reporter Reporter
}

// RunReport aggregates a run. Jobs are in dispatch order.
type RunReport struct {
	RunID      string             `json:"runId" yaml:"runId"`
	StartedAt  time.Time          `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt" yaml:"finishedAt"`
	Duration   time.Duration      `json:"duration" yaml:"duration"`
	Success    bool               `json:"success" yaml:"success"`
	Cancelled  bool               `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Jobs       []*suite.JobResult `json:"jobs" yaml:"jobs"`
	Totals     Totals             `json:"totals" yaml:"totals"`
}

// Totals counts jobs per outcome.
type Totals struct {
	Jobs        int `json:"jobs" yaml:"jobs"`
	Passed      int `json:"passed" yaml:"passed"`
	Failed      int `json:"failed" yaml:"failed"`
	Quarantined int `json:"quarantined" yaml:"quarantined"`
	Cancelled   int `json:"cancelled" yaml:"cancelled"`
}

// Err returns ErrRunCancelled for an interrupted run and nil otherwise.
func (r *RunReport) Err() error {
	if r.Cancelled {
		return ErrRunCancelled
	}
	return nil
}

// Job returns the result for jobID.
func (r *RunReport) Job(jobID string) (*suite.JobResult, bool) {
	for _, j := range r.Jobs {
		if j.JobID == jobID {
			return j, true
		}
	}
	return nil, false
}

// summarize fills Totals and Success: a run succeeds iff every job that is
// not quarantined passed.
func (r *RunReport) summarize() {
	r.Totals = Totals{Jobs: len(r.Jobs)}
	r.Success = true
	for _, j := range r.Jobs {
		switch j.Outcome {
		case suite.OutcomePass:
			r.Totals.Passed++
		case suite.OutcomeQuarantined:
			r.Totals.Quarantined++
		case suite.OutcomeCancelled:
			r.Totals.Cancelled++
			r.Success = false
		default:
			r.Totals.Failed++
			r.Success = false
		}
	}
}

type nopReporter struct{}

func (nopReporter) RunStarted(string, []matrix.Job) {}

func (nopReporter) JobStateChanged(matrix.Job, JobState, JobState) {}

func (nopReporter) JobFinished(matrix.Job, *suite.JobResult) {}

func (nopReporter) RunFinished(*RunReport) {}
