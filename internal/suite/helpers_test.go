package suite

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"relaymatrix/internal/environment"
)

type launchFunc func(ctx context.Context, inv Invocation) (int, error)

// fakeLauncher records invocations and the peak number of concurrent launches.
type fakeLauncher struct {
	delay     time.Duration
	behaviour map[string]launchFunc

	running atomic.Int32
	peak    atomic.Int32

	mu          sync.Mutex
	invocations []Invocation
}

func (f *fakeLauncher) Launch(ctx context.Context, _ *environment.Environment, inv Invocation) (int, error) {
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	if fn, ok := f.behaviour[inv.Case]; ok {
		return fn(ctx, inv)
	}
	select {
	case <-time.After(f.delay):
		return 0, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (f *fakeLauncher) invocation(name string) (Invocation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invocations {
		if inv.Case == name {
			return inv, true
		}
	}
	return Invocation{}, false
}

func exitWith(code int) launchFunc {
	return func(context.Context, Invocation) (int, error) { return code, nil }
}

func blockUntilDone(ctx context.Context, _ Invocation) (int, error) {
	<-ctx.Done()
	return -1, ctx.Err()
}

func testEnv() *environment.Environment {
	return &environment.Environment{
		AcquisitionID: "acq-1",
		Ref:           "gaia@v8.0.0",
		Digest:        "sha256:abc",
		Backend:       environment.BackendLocal,
		Executables:   map[string]string{"gaiad": "/store/gaia/bin/gaiad"},
		Vars:          map[string]string{"CHAIN_ID": "gaia-8"},
	}
}
