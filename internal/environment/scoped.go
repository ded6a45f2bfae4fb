package environment

import (
	"context"
	"errors"
	"time"

	"relaymatrix/pkg/logging"
)

// DefaultReleaseTimeout bounds a release that runs after the caller's
// context has already been cancelled.
const DefaultReleaseTimeout = 30 * time.Second

// With acquires ref, calls fn with the environment and releases it on every
// exit path, including a panic in fn or a cancelled ctx. Release runs on a
// context detached from ctx so that cancellation never leaks an environment.
func With(ctx context.Context, p Provider, ref string, releaseTimeout time.Duration, fn func(*Environment) error) (err error) {
	env, err := p.Acquire(ctx, ref)
	if err != nil {
		return err
	}
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := p.Release(releaseCtx, env); rerr != nil {
			logging.Error("Environment", rerr, "failed to release %s", env.Ref)
			err = errors.Join(err, rerr)
		}
	}()

	return fn(env)
}
