package scheduler

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"relaymatrix/internal/environment"
	"relaymatrix/pkg/logging"
)

// retryingProvider re-attempts transient acquisition failures with
// exponential backoff. One is created per job so that Attempts is the job's
// own count.
type retryingProvider struct {
	environment.Provider
	backoff  wait.Backoff
	timeout  time.Duration
	log      logging.Scope
	attempts int
}

func newRetryingProvider(p environment.Provider, opts Options, log logging.Scope) *retryingProvider {
	retries := opts.AcquireRetries
	if retries < 0 {
		retries = 0
	}
	return &retryingProvider{
		Provider: p,
		backoff: wait.Backoff{
			Duration: opts.RetryDelay,
			Factor:   2,
			Jitter:   0.1,
			Steps:    retries + 1,
		},
		timeout: opts.AcquireTimeout,
		log:     log,
	}
}

// Acquire implements environment.Provider.
func (p *retryingProvider) Acquire(ctx context.Context, ref string) (*environment.Environment, error) {
	var env *environment.Environment
	var lastErr error

	err := wait.ExponentialBackoffWithContext(ctx, p.backoff, func(ctx context.Context) (bool, error) {
		p.attempts++
		attemptCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		e, err := p.Provider.Acquire(attemptCtx, ref)
		if err == nil {
			env = e
			return true, nil
		}
		lastErr = err
		if ctx.Err() != nil || !environment.IsTransient(err) {
			return false, err
		}
		p.log.Warn("acquisition attempt %d of %s failed: %v", p.attempts, ref, err)
		return false, nil
	})

	switch {
	case err == nil:
		return env, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case lastErr != nil:
		return nil, lastErr
	default:
		return nil, err
	}
}
