package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T, idx *Index, keep bool) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(idx, LocalOptions{WorkDir: t.TempDir(), Keep: keep})
	require.NoError(t, err)
	return p
}

func TestLocalProvider_AcquireAndRelease(t *testing.T) {
	idx := testIndex(t)
	p := newLocal(t, idx, false)
	ctx := context.Background()

	env, err := p.Acquire(ctx, "gaia@v8.0.0+wasmd@v0.30.0")
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, env.Backend)
	assert.NotEmpty(t, env.AcquisitionID)
	assert.DirExists(t, env.WorkDir)
	assert.Equal(t, filepath.Join(env.WorkDir, "home"), env.Vars["HOME"])
	assert.Equal(t, "gaia-8", env.Vars["CHAIN_ID"])

	target, err := os.Readlink(filepath.Join(env.BinDir, "gaiad"))
	require.NoError(t, err)
	assert.Equal(t, idx.Packages["gaia@v8.0.0"].Executables["gaiad"].Path, target)
	assert.Equal(t, 1, p.Pinned(target))
	assert.Equal(t, 1, p.Active())

	require.NoError(t, p.Release(ctx, env))
	assert.NoDirExists(t, env.WorkDir)
	assert.Equal(t, 0, p.Pinned(target))
	assert.Equal(t, 0, p.Active())

	err = p.Release(ctx, env)
	require.Error(t, err, "a second release must be rejected")
	assert.Contains(t, err.Error(), "not held by this provider")

	require.NoError(t, p.Cleanup())
	assert.NoDirExists(t, p.Root())
}

func TestLocalProvider_AcquisitionsAreNotShared(t *testing.T) {
	p := newLocal(t, testIndex(t), false)
	ctx := context.Background()

	a, err := p.Acquire(ctx, "gaia@v8.0.0")
	require.NoError(t, err)
	b, err := p.Acquire(ctx, "gaia@v8.0.0")
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest, "same ref, same content")
	assert.NotEqual(t, a.AcquisitionID, b.AcquisitionID)
	assert.NotEqual(t, a.WorkDir, b.WorkDir)
	assert.Equal(t, 2, p.Pinned(a.Executables["gaiad"]))

	require.NoError(t, p.Release(ctx, a))
	assert.DirExists(t, b.WorkDir)
	assert.Equal(t, 1, p.Pinned(b.Executables["gaiad"]))
	require.NoError(t, p.Release(ctx, b))
}

func TestLocalProvider_DigestMismatchIsPermanent(t *testing.T) {
	idx := testIndex(t)
	gaiad := idx.Packages["gaia@v8.0.0"].Executables["gaiad"].Path
	require.NoError(t, os.WriteFile(gaiad, []byte("tampered"), 0755))

	p := newLocal(t, idx, false)
	_, err := p.Acquire(context.Background(), "gaia@v8.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvironmentUnavailable))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "sha256 mismatch")
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 0, p.Pinned(gaiad))
}

func TestLocalProvider_MissingFileIsTransient(t *testing.T) {
	idx := testIndex(t)
	wasmd := idx.Packages["wasmd@v0.30.0"].Executables["wasmd"].Path
	content, err := os.ReadFile(wasmd)
	require.NoError(t, err)
	require.NoError(t, os.Remove(wasmd))

	p := newLocal(t, idx, false)
	_, err = p.Acquire(context.Background(), "wasmd@v0.30.0")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "not in the store yet")

	// Once the store is populated a retry succeeds.
	require.NoError(t, os.WriteFile(wasmd, content, 0755))
	env, err := p.Acquire(context.Background(), "wasmd@v0.30.0")
	require.NoError(t, err)
	require.NoError(t, p.Release(context.Background(), env))
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	p := newLocal(t, testIndex(t), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx, "gaia@v8.0.0")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Active())
}

func TestLocalProvider_ConcurrentAcquire(t *testing.T) {
	p := newLocal(t, testIndex(t), false)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- With(ctx, p, "gaia@v8.0.0+wasmd@v0.30.0", 0, func(env *Environment) error {
				_, err := os.Stat(filepath.Join(env.BinDir, "wasmd"))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, p.Active())
	entries, err := os.ReadDir(p.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "every acquisition directory is removed")
}

func TestLocalProvider_KeepLeavesDirectories(t *testing.T) {
	p := newLocal(t, testIndex(t), true)

	env, err := p.Acquire(context.Background(), "gaia@v8.0.0")
	require.NoError(t, err)
	require.NoError(t, p.Release(context.Background(), env))
	assert.DirExists(t, env.WorkDir)
	assert.Equal(t, 0, p.Active())
}

func TestWith_ReleasesOnEveryExitPath(t *testing.T) {
	p := newLocal(t, testIndex(t), false)

	boom := errors.New("suite crashed")
	err := With(context.Background(), p, "gaia@v8.0.0", 0, func(*Environment) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Active())

	ctx, cancel := context.WithCancel(context.Background())
	err = With(ctx, p, "gaia@v8.0.0", 0, func(*Environment) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Active())

	assert.Panics(t, func() {
		_ = With(context.Background(), p, "gaia@v8.0.0", 0, func(*Environment) error { panic("runner bug") })
	})
	assert.Equal(t, 0, p.Active())
}

func TestWith_AcquireFailureSkipsFn(t *testing.T) {
	p := newLocal(t, testIndex(t), false)
	called := false

	err := With(context.Background(), p, "nope@v0", 0, func(*Environment) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrEnvironmentUnavailable)
	assert.False(t, called)
}
