package environment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"relaymatrix/pkg/logging"
)

const hashChunkSize = 1 << 20

// LocalOptions configures a LocalProvider.
type LocalOptions struct {
	// WorkDir is the parent of the per-provider scratch directory. Empty means
	// the system temp dir.
	WorkDir string
	// Keep leaves acquisition directories on disk after release.
	Keep bool
}

// LocalProvider acquires environments from a content-addressed store on the
// local file system. Each acquisition gets its own directory with a bin/ of
// symlinks into the store and a private HOME.
type LocalProvider struct {
	index *Index
	root  string
	keep  bool

	group singleflight.Group

	mu       sync.Mutex
	verified map[string]struct{}
	pins     map[string]int
	active   map[string]*Environment
}

// NewLocalProvider creates a provider over index.
func NewLocalProvider(index *Index, opts LocalOptions) (*LocalProvider, error) {
	if index == nil {
		return nil, errors.New("package index is required")
	}
	if opts.WorkDir != "" {
		if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create work directory: %w", err)
		}
	}
	root, err := os.MkdirTemp(opts.WorkDir, "relaymatrix-env-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &LocalProvider{
		index:    index,
		root:     root,
		keep:     opts.Keep,
		verified: make(map[string]struct{}),
		pins:     make(map[string]int),
		active:   make(map[string]*Environment),
	}, nil
}

// Root returns the scratch directory holding all acquisitions.
func (p *LocalProvider) Root() string {
	return p.root
}

// Acquire implements Provider.
func (p *LocalProvider) Acquire(ctx context.Context, ref string) (*Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := p.index.Resolve(ref)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(resolved.Executables))
	for _, name := range sortedKeys(resolved.Executables) {
		exe := resolved.Executables[name]
		if err := p.verify(ctx, ref, exe); err != nil {
			return nil, err
		}
		paths = append(paths, exe.Path)
	}

	p.pin(paths)
	env, err := p.materialize(resolved)
	if err != nil {
		p.unpin(paths)
		return nil, err
	}

	p.mu.Lock()
	p.active[env.AcquisitionID] = env
	p.mu.Unlock()

	logging.Debug("Environment", "acquired %s (%s) at %s", ref, env.Digest, env.WorkDir)
	return env, nil
}

// Release implements Provider. Releasing an environment twice is an error.
func (p *LocalProvider) Release(ctx context.Context, env *Environment) error {
	if env == nil {
		return nil
	}

	p.mu.Lock()
	_, ok := p.active[env.AcquisitionID]
	delete(p.active, env.AcquisitionID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("environment %s (%s) is not held by this provider", env.Ref, env.AcquisitionID)
	}

	paths := make([]string, 0, len(env.Executables))
	for _, target := range env.Executables {
		paths = append(paths, target)
	}
	p.unpin(paths)

	if p.keep {
		logging.Info("Environment", "keeping %s for debugging: %s", env.Ref, env.WorkDir)
		return nil
	}
	if err := os.RemoveAll(env.WorkDir); err != nil {
		return fmt.Errorf("failed to remove environment directory: %w", err)
	}
	logging.Debug("Environment", "released %s (%s)", env.Ref, env.AcquisitionID)
	return nil
}

// Pinned returns how many live acquisitions reference a store path.
func (p *LocalProvider) Pinned(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[path]
}

// Active returns the number of unreleased acquisitions.
func (p *LocalProvider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Cleanup removes the scratch directory. Acquisitions still held are left
// in place and reported.
func (p *LocalProvider) Cleanup() error {
	if n := p.Active(); n > 0 {
		return fmt.Errorf("%d environment(s) still acquired", n)
	}
	if p.keep {
		return nil
	}
	return os.RemoveAll(p.root)
}

// verify checks an executable against its recorded digest. Concurrent checks
// of the same file share one hash computation and successful results are
// remembered for the lifetime of the provider.
func (p *LocalProvider) verify(ctx context.Context, ref string, exe Executable) error {
	key := exe.Path + "@" + exe.SHA256

	p.mu.Lock()
	_, done := p.verified[key]
	p.mu.Unlock()
	if done {
		return nil
	}

	for {
		_, err, _ := p.group.Do(key, func() (interface{}, error) {
			return nil, hashAndCompare(ctx, exe)
		})
		if err == nil {
			p.mu.Lock()
			p.verified[key] = struct{}{}
			p.mu.Unlock()
			return nil
		}
		// The shared computation belonged to a caller that gave up.
		if isContextErr(err) && ctx.Err() == nil {
			continue
		}
		if isContextErr(err) {
			return ctx.Err()
		}
		var mismatch *digestMismatchError
		if errors.As(err, &mismatch) {
			return permanent(ref, err, "executable %s failed verification", exe.Path)
		}
		if isNotExist(err) {
			return transient(ref, err, "executable %s is not in the store yet", exe.Path)
		}
		return transient(ref, err, "executable %s is not readable", exe.Path)
	}
}

type digestMismatchError struct {
	want, got string
}

func (e *digestMismatchError) Error() string {
	return fmt.Sprintf("sha256 mismatch: want %s, got %s", e.want, e.got)
}

func hashAndCompare(ctx context.Context, exe Executable) error {
	f, err := os.Open(exe.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != exe.SHA256 {
		return &digestMismatchError{want: exe.SHA256, got: got}
	}
	return nil
}

func (p *LocalProvider) materialize(r *Resolved) (*Environment, error) {
	id := uuid.New().String()
	dir := filepath.Join(p.root, sanitizeFileName(r.Ref)+"-"+id[:8])
	binDir := filepath.Join(dir, "bin")
	homeDir := filepath.Join(dir, "home")

	for _, d := range []string{binDir, homeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			os.RemoveAll(dir)
			return nil, transient(r.Ref, err, "failed to create environment directory")
		}
	}

	executables := make(map[string]string, len(r.Executables))
	for name, exe := range r.Executables {
		link := filepath.Join(binDir, name)
		if err := os.Symlink(exe.Path, link); err != nil {
			os.RemoveAll(dir)
			return nil, transient(r.Ref, err, "failed to link executable %s", name)
		}
		executables[name] = exe.Path
	}

	vars := make(map[string]string, len(r.Vars)+1)
	for k, v := range r.Vars {
		vars[k] = v
	}
	vars["HOME"] = homeDir

	return &Environment{
		AcquisitionID: id,
		Ref:           r.Ref,
		Digest:        r.Digest,
		Backend:       BackendLocal,
		Packages:      r.Packages,
		Executables:   executables,
		Toolchain:     r.Toolchain,
		Vars:          vars,
		WorkDir:       dir,
		BinDir:        binDir,
		HomeDir:       homeDir,
	}, nil
}

func (p *LocalProvider) pin(paths []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range paths {
		p.pins[path]++
	}
}

func (p *LocalProvider) unpin(paths []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range paths {
		if p.pins[path] <= 1 {
			delete(p.pins, path)
			continue
		}
		p.pins[path]--
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isNotExist reports a store file that has not been populated yet.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// sanitizeFileName makes a ref safe for use as a directory name.
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"+", "_",
		"@", "-",
		" ", "_",
	)
	sanitized := replacer.Replace(name)
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return sanitized
}
