package suite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"relaymatrix/internal/environment"
	"relaymatrix/internal/template"
	"relaymatrix/pkg/logging"
	pkgstrings "relaymatrix/pkg/strings"
)

// Variables exported to every case process.
const (
	EnvJobID    = "RELAYMATRIX_JOB"
	EnvCaseName = "RELAYMATRIX_CASE"
	EnvFeatures = "RELAYMATRIX_FEATURES"
)

// Runner executes the cases of a catalog against one acquired environment.
type Runner struct {
	catalog  *Catalog
	launcher Launcher
	engine   *template.Engine
}

// NewRunner creates a runner for catalog that launches cases with launcher.
func NewRunner(catalog *Catalog, launcher Launcher) *Runner {
	return &Runner{
		catalog:  catalog,
		launcher: launcher,
		engine:   template.New(),
	}
}

// Catalog returns the runner's catalog.
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Run executes the cases selected by opts.Filter with at most
// opts.Concurrency running at once. It always returns a result; cases are
// reported sorted by name whatever order they completed in.
func (r *Runner) Run(ctx context.Context, env *environment.Environment, opts Options) *JobResult {
	start := time.Now()
	log := logging.For("SuiteRunner").WithJob(opts.JobID)
	result := &JobResult{
		JobID:       opts.JobID,
		Environment: env.Ref,
		Digest:      env.Digest,
	}
	defer func() {
		result.Duration = time.Since(start)
	}()

	filter, err := ParseFilter(opts.Filter)
	if err != nil {
		result.Outcome = OutcomeFail
		result.Diagnostic = err.Error()
		return result
	}
	selected := r.catalog.Select(filter)
	if len(selected) == 0 {
		result.Outcome = OutcomeFail
		result.Diagnostic = fmt.Sprintf("no test cases matched filter %q", opts.Filter)
		return result
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	log.Debug("running %d case(s) with concurrency %d", len(selected), concurrency)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// cancelled is set once a case is given up because the run itself ended.
	var failFast, cancelled atomic.Bool
	abandoned := func(tc TestCase) CaseResult {
		reason := ReasonFailFast
		if ctx.Err() != nil || !failFast.Load() {
			reason = ReasonCancelled
			cancelled.Store(true)
		}
		return CaseResult{Name: tc.Name, Outcome: OutcomeSkip, Reason: reason}
	}

	base := r.baseContext(env, opts)
	results := make([]CaseResult, len(selected))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, tc := range selected {
		if missing := missingFeatures(tc, opts.Features); len(missing) > 0 {
			results[i] = CaseResult{
				Name:    tc.Name,
				Outcome: OutcomeSkip,
				Reason:  "requires feature " + strings.Join(missing, ", "),
			}
			log.WithCase(tc.Name).Debug("skipped: %s", results[i].Reason)
			continue
		}
		if runCtx.Err() != nil {
			results[i] = abandoned(tc)
			continue
		}

		g.Go(func() error {
			if runCtx.Err() != nil {
				results[i] = abandoned(tc)
				return nil
			}
			res, aborted := r.runCase(runCtx, env, tc, opts, base)
			if aborted {
				results[i] = abandoned(tc)
				return nil
			}
			results[i] = res
			if res.Outcome == OutcomeFail && opts.FailFast && failFast.CompareAndSwap(false, true) {
				log.WithCase(tc.Name).Warn("fail-fast: aborting remaining cases")
				cancelRun()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	result.Cases = results

	result.Outcome = OutcomePass
	for _, c := range results {
		if c.Outcome == OutcomeFail {
			result.Outcome = OutcomeFail
			break
		}
	}
	if cancelled.Load() {
		result.Outcome = OutcomeCancelled
		result.Diagnostic = "run cancelled"
	}
	return result
}

// runCase executes one case. aborted is true when ctx ended before the
// launcher could report a result. A result that arrives as ctx ends is kept.
func (r *Runner) runCase(ctx context.Context, env *environment.Environment, tc TestCase, opts Options, base map[string]interface{}) (CaseResult, bool) {
	log := logging.For("SuiteRunner").WithJob(opts.JobID).WithCase(tc.Name)
	res := CaseResult{Name: tc.Name}
	start := time.Now()

	var stdout, stderr bytes.Buffer
	inv, err := r.render(env, tc, opts, base)
	if err != nil {
		res.Outcome = OutcomeFail
		res.Diagnostic = err.Error()
		return res, false
	}
	inv.Stdout = &stdout
	inv.Stderr = &stderr

	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = opts.CaseTimeout
	}
	caseCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Debug("launching %s %s", inv.Command, strings.Join(inv.Args, " "))
	code, err := r.launcher.Launch(caseCtx, env, inv)
	res.Duration = time.Since(start)

	switch {
	case err != nil && ctx.Err() != nil:
		log.Debug("aborted after %s", res.Duration.Round(time.Millisecond))
		return res, true
	case err != nil && errors.Is(caseCtx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeFail
		res.Diagnostic = withTail(fmt.Sprintf("%v after %s", ErrCaseTimeout, timeout), stderr.Bytes())
	case err != nil:
		res.Outcome = OutcomeFail
		res.Diagnostic = fmt.Sprintf("failed to launch: %v", err)
	default:
		pass, diagnostic := DriverFor(tc.Driver).Evaluate(code, stdout.Bytes(), stderr.Bytes())
		res.Outcome = OutcomePass
		if !pass {
			res.Outcome = OutcomeFail
			res.Diagnostic = diagnostic
		}
	}

	if res.Outcome == OutcomeFail {
		log.Warn("%s in %s: %s", res.Outcome, res.Duration.Round(time.Millisecond), pkgstrings.FirstLine(res.Diagnostic))
	} else {
		log.Info("%s in %s", res.Outcome, res.Duration.Round(time.Millisecond))
	}
	return res, false
}

func (r *Runner) render(env *environment.Environment, tc TestCase, opts Options, base map[string]interface{}) (Invocation, error) {
	data := template.Layer(base, map[string]interface{}{
		"Case": map[string]interface{}{"Name": tc.Name},
	})

	command, err := r.engine.Render(tc.Command, data)
	if err != nil {
		return Invocation{}, fmt.Errorf("command: %w", err)
	}
	args, err := r.engine.RenderAll(tc.Args, data)
	if err != nil {
		return Invocation{}, fmt.Errorf("args: %w", err)
	}
	extra, err := r.engine.RenderEnv(tc.Env, data)
	if err != nil {
		return Invocation{}, fmt.Errorf("env: %w", err)
	}
	image, err := r.engine.Render(tc.Image, data)
	if err != nil {
		return Invocation{}, fmt.Errorf("image: %w", err)
	}

	extra = append(extra,
		EnvJobID+"="+opts.JobID,
		EnvCaseName+"="+tc.Name,
		EnvFeatures+"="+strings.Join(sets.List(opts.Features), ","),
	)
	return Invocation{
		JobID:   opts.JobID,
		Case:    tc.Name,
		Command: command,
		Args:    args,
		Env:     extra,
		Image:   image,
	}, nil
}

// baseContext exposes the environment to case templates.
func (r *Runner) baseContext(env *environment.Environment, opts Options) map[string]interface{} {
	return map[string]interface{}{
		"Ref":         env.Ref,
		"Digest":      env.Digest,
		"Executables": env.Executables,
		"Toolchain":   env.Toolchain,
		"Vars":        env.Vars,
		"WorkDir":     env.WorkDir,
		"BinDir":      env.BinDir,
		"HomeDir":     env.HomeDir,
		"Image":       env.Image,
		"Images":      env.Images,
		"Network":     env.Network,
		"Volume":      env.Volume,
		"Job": map[string]interface{}{
			"ID":       opts.JobID,
			"Features": sets.List(opts.Features),
		},
	}
}
