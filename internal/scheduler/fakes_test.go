package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"relaymatrix/internal/environment"
	"relaymatrix/internal/matrix"
	"relaymatrix/internal/suite"
	"relaymatrix/pkg/logging"
)

// fakeProvider hands out environments and counts calls per ref.
type fakeProvider struct {
	acquired atomic.Int32
	released atomic.Int32

	mu         sync.Mutex
	calls      map[string]int
	permanent  map[string]bool
	transients map[string]int // failures left before success
	active     map[string]bool
	seq        int

	// onRelease runs inside Release, e.g. to cancel the run mid-teardown.
	onRelease func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls:      map[string]int{},
		permanent:  map[string]bool{},
		transients: map[string]int{},
		active:     map[string]bool{},
	}
}

func (p *fakeProvider) Acquire(ctx context.Context, ref string) (*environment.Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[ref]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.permanent[ref] {
		return nil, &environment.UnavailableError{Ref: ref, Reason: "unknown package"}
	}
	if p.transients[ref] > 0 {
		p.transients[ref]--
		return nil, &environment.UnavailableError{Ref: ref, Reason: "store busy", Transient: true}
	}

	p.seq++
	env := &environment.Environment{
		AcquisitionID: fmt.Sprintf("acq-%d", p.seq),
		Ref:           ref,
		Digest:        "sha256:" + ref,
	}
	p.active[env.AcquisitionID] = true
	p.acquired.Add(1)
	return env, nil
}

func (p *fakeProvider) Release(_ context.Context, env *environment.Environment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active[env.AcquisitionID] {
		return fmt.Errorf("double release of %s", env.AcquisitionID)
	}
	delete(p.active, env.AcquisitionID)
	p.released.Add(1)
	if p.onRelease != nil {
		p.onRelease()
	}
	return nil
}

func (p *fakeProvider) callsFor(ref string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ref]
}

func (p *fakeProvider) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// fakeRunner returns a canned outcome per job, or blocks until cancelled.
type fakeRunner struct {
	outcomes map[string]suite.Outcome
	block    bool
	started  chan string

	calls atomic.Int32
	mu    sync.Mutex
	opts  map[string]suite.Options
}

func (r *fakeRunner) Run(ctx context.Context, env *environment.Environment, opts suite.Options) *suite.JobResult {
	r.calls.Add(1)
	r.mu.Lock()
	if r.opts == nil {
		r.opts = map[string]suite.Options{}
	}
	r.opts[opts.JobID] = opts
	r.mu.Unlock()

	if r.started != nil {
		r.started <- opts.JobID
	}
	if r.block {
		<-ctx.Done()
		return &suite.JobResult{JobID: opts.JobID, Outcome: suite.OutcomeCancelled, Diagnostic: "run cancelled"}
	}

	outcome := suite.OutcomePass
	if o, ok := r.outcomes[opts.JobID]; ok {
		outcome = o
	}
	return &suite.JobResult{
		JobID:   opts.JobID,
		Outcome: outcome,
		Cases:   []suite.CaseResult{{Name: "transfer", Outcome: outcome}},
	}
}

func (r *fakeRunner) optionsFor(jobID string) suite.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts[jobID]
}

type transitionRecord struct {
	job      string
	from, to JobState
}

type recordingReporter struct {
	mu          sync.Mutex
	transitions []transitionRecord
	finished    []string
	runID       string
	report      *RunReport
}

func (r *recordingReporter) RunStarted(runID string, _ []matrix.Job) {
	r.runID = runID
}

func (r *recordingReporter) JobStateChanged(job matrix.Job, from, to JobState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transitionRecord{job.ID, from, to})
}

func (r *recordingReporter) JobFinished(job matrix.Job, _ *suite.JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, job.ID)
}

func (r *recordingReporter) RunFinished(report *RunReport) {
	r.report = report
}

func (r *recordingReporter) transitionsFor(jobID string) []JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobState
	for _, t := range r.transitions {
		if t.job == jobID {
			out = append(out, t.to)
		}
	}
	return out
}

func jobsFor(refs ...string) []matrix.Job {
	jobs := make([]matrix.Job, len(refs))
	for i, ref := range refs {
		jobs[i] = matrix.Job{
			ID:             fmt.Sprintf("versioned-chain/chain=%s", ref),
			Family:         "versioned-chain",
			Index:          i,
			EnvironmentRef: ref,
			Concurrency:    2,
		}
	}
	return jobs
}

func testScope() logging.Scope {
	return logging.For("SchedulerTest")
}
