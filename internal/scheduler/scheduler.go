package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaymatrix/internal/environment"
	"relaymatrix/internal/matrix"
	"relaymatrix/internal/suite"
	"relaymatrix/pkg/logging"
)

// Scheduler dispatches jobs to a bounded pool of workers. Each worker owns a
// job end to end: quarantine check, acquisition, suite run, release.
type Scheduler struct {
	provider   environment.Provider
	runner     SuiteRunner
	quarantine QuarantineSource
	opts       Options
	reporter   Reporter
}

// New creates a scheduler. quarantine may be nil.
func New(provider environment.Provider, runner SuiteRunner, quarantine QuarantineSource, opts Options) *Scheduler {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = environment.DefaultReleaseTimeout
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Scheduler{
		provider:   provider,
		runner:     runner,
		quarantine: quarantine,
		opts:       opts,
		reporter:   reporter,
	}
}

type collected struct {
	position int
	result   *suite.JobResult
}

// RunAll executes jobs and returns the aggregated report. Cancelling ctx
// marks every job that has not started CANCELLED, terminates running cases
// and waits for their environments to be released before returning.
func (s *Scheduler) RunAll(ctx context.Context, jobs []matrix.Job) *RunReport {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	log := logging.For("Scheduler")
	log.Info("run %s: %d job(s), %d in parallel", report.RunID, len(jobs), s.opts.Parallel)
	s.reporter.RunStarted(report.RunID, jobs)

	states := newStateTable()
	type dispatch struct {
		position int
		job      matrix.Job
	}
	jobChan := make(chan dispatch, len(jobs))
	resultChan := make(chan collected, len(jobs))

	for i, job := range jobs {
		jobChan <- dispatch{position: i, job: job}
	}
	close(jobChan)

	var wg sync.WaitGroup
	numWorkers := s.opts.Parallel
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for d := range jobChan {
				log.WithJob(d.job.ID).Debug("worker %d picked up job", workerID)
				resultChan <- collected{position: d.position, result: s.runJob(ctx, d.job, states)}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var results []collected
	for c := range resultChan {
		results = append(results, c)
		s.reporter.JobFinished(jobs[c.position], c.result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].position < results[j].position })
	report.Jobs = make([]*suite.JobResult, len(results))
	for i, c := range results {
		report.Jobs[i] = c.result
	}

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.summarize()

	log.Info("run %s finished in %s: %d passed, %d failed, %d quarantined, %d cancelled",
		report.RunID, report.Duration.Round(time.Millisecond),
		report.Totals.Passed, report.Totals.Failed, report.Totals.Quarantined, report.Totals.Cancelled)
	s.reporter.RunFinished(report)
	return report
}

func (s *Scheduler) transition(states *stateTable, job matrix.Job, to JobState) {
	from, err := states.transition(job.ID, to)
	if err != nil {
		logging.For("Scheduler").WithJob(job.ID).Error(err, "rejected state change")
		return
	}
	s.reporter.JobStateChanged(job, from, to)
}

func (s *Scheduler) runJob(ctx context.Context, job matrix.Job, states *stateTable) *suite.JobResult {
	log := logging.For("Scheduler").WithJob(job.ID)
	start := time.Now()
	result := &suite.JobResult{JobID: job.ID, Environment: job.EnvironmentRef}
	finish := func(to JobState) *suite.JobResult {
		result.Duration = time.Since(start)
		s.transition(states, job, to)
		return result
	}

	if ctx.Err() != nil {
		result.Outcome = suite.OutcomeCancelled
		result.Diagnostic = "run cancelled before the job started"
		return finish(StateCancelled)
	}

	if reason, ok := s.quarantined(job); ok {
		log.Info("quarantined: %s", reason)
		result.Outcome = suite.OutcomeQuarantined
		result.Diagnostic = "quarantined: " + reason
		return finish(StateQuarantined)
	}

	s.transition(states, job, StateAcquiring)
	provider := newRetryingProvider(s.provider, s.opts, log)

	var ran bool
	err := environment.With(ctx, provider, job.EnvironmentRef, s.opts.ReleaseTimeout, func(env *environment.Environment) error {
		ran = true
		s.transition(states, job, StateRunning)
		log.Info("running on %s (%s)", env.Ref, env.Digest)

		res := s.runner.Run(ctx, env, s.suiteOptions(job))
		res.JobID = job.ID
		res.Environment = env.Ref
		res.Digest = env.Digest
		result = res
		return nil
	})
	result.Attempts = provider.attempts

	switch {
	case !ran && ctx.Err() != nil:
		result.Outcome = suite.OutcomeCancelled
		result.Diagnostic = "run cancelled while acquiring the environment"
		return finish(StateCancelled)
	case !ran:
		result.Outcome = suite.OutcomeFail
		result.Diagnostic = unavailableDiagnostic(err)
		log.Error(err, "environment acquisition failed after %d attempt(s)", provider.attempts)
		return finish(StateAcquireFailed)
	case result.Outcome == suite.OutcomeCancelled:
		// Only a suite that gave up cases counts as cancelled. A run
		// cancelled during release keeps the outcome already recorded.
		if result.Diagnostic == "" {
			result.Diagnostic = "run cancelled"
		}
		return finish(StateCancelled)
	}

	if err != nil {
		// The suite finished but the environment could not be released.
		log.Warn("release failed: %v", err)
	}
	if result.Outcome == suite.OutcomePass {
		return finish(StatePassed)
	}
	return finish(StateFailed)
}

// quarantined checks the job's own flag, then the registry.
func (s *Scheduler) quarantined(job matrix.Job) (string, bool) {
	if job.Quarantined {
		return job.QuarantineReason, true
	}
	if s.quarantine == nil {
		return "", false
	}
	if entry, ok := s.quarantine.Lookup(job.ID); ok {
		return entry.Reason, true
	}
	return "", false
}

func (s *Scheduler) suiteOptions(job matrix.Job) suite.Options {
	opts := suite.Options{
		JobID:       job.ID,
		Filter:      job.Filter,
		Concurrency: job.Concurrency,
		Features:    job.FeatureSet(),
		FailFast:    job.FailFast || s.opts.FailFast,
		CaseTimeout: job.CaseTimeout,
	}
	if s.opts.Filter != "" {
		opts.Filter = s.opts.Filter
	}
	if s.opts.CaseConcurrency > 0 {
		opts.Concurrency = s.opts.CaseConcurrency
	}
	if opts.CaseTimeout <= 0 {
		opts.CaseTimeout = s.opts.CaseTimeout
	}
	return opts
}

func unavailableDiagnostic(err error) string {
	if errors.Is(err, environment.ErrEnvironmentUnavailable) {
		return err.Error()
	}
	return fmt.Sprintf("%v: %v", environment.ErrEnvironmentUnavailable, err)
}
