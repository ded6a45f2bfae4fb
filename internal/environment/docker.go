package environment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaymatrix/pkg/logging"
)

// DefaultLabelPrefix namespaces the labels put on docker resources.
const DefaultLabelPrefix = "relaymatrix"

// DockerOptions configures a DockerProvider.
type DockerOptions struct {
	LabelPrefix string
	Keep        bool
	// ReleaseTimeout bounds the teardown of a partial acquisition.
	ReleaseTimeout time.Duration
}

// DockerProvider acquires environments as a dedicated docker network and
// volume per acquisition. Cases run in containers of the digest-pinned
// package images attached to both.
type DockerProvider struct {
	runtime        ContainerRuntime
	index          *Index
	labelPrefix    string
	keep           bool
	releaseTimeout time.Duration

	mu     sync.Mutex
	active map[string]*Environment
}

// NewDockerProvider creates a provider that drives runtime.
func NewDockerProvider(index *Index, runtime ContainerRuntime, opts DockerOptions) (*DockerProvider, error) {
	if index == nil {
		return nil, fmt.Errorf("package index is required")
	}
	if runtime == nil {
		return nil, fmt.Errorf("container runtime is required")
	}
	prefix := opts.LabelPrefix
	if prefix == "" {
		prefix = DefaultLabelPrefix
	}
	releaseTimeout := opts.ReleaseTimeout
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}
	return &DockerProvider{
		runtime:        runtime,
		index:          index,
		labelPrefix:    prefix,
		keep:           opts.Keep,
		releaseTimeout: releaseTimeout,
		active:         make(map[string]*Environment),
	}, nil
}

// Runtime returns the container runtime cases should be launched with.
func (p *DockerProvider) Runtime() ContainerRuntime {
	return p.runtime
}

// AcquisitionLabel is the label key carrying the acquisition id.
func (p *DockerProvider) AcquisitionLabel() string {
	return p.labelPrefix + ".acquisition"
}

// Acquire implements Provider.
func (p *DockerProvider) Acquire(ctx context.Context, ref string) (*Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := p.index.Resolve(ref)
	if err != nil {
		return nil, err
	}
	for _, id := range resolved.Packages {
		image, ok := resolved.Images[id]
		if !ok {
			return nil, permanent(ref, nil, "package %s has no container image", id)
		}
		if !strings.Contains(image, "@sha256:") {
			return nil, permanent(ref, nil, "image %s for %s is not pinned by digest", image, id)
		}
	}

	id := uuid.New().String()
	name := p.labelPrefix + "-" + id[:12]
	labels := map[string]string{
		p.AcquisitionLabel():      id,
		p.labelPrefix + ".ref":    sanitizeFileName(ref),
		p.labelPrefix + ".digest": strings.TrimPrefix(resolved.Digest, "sha256:"),
	}

	if err := p.runtime.CreateNetwork(ctx, name, labels); err != nil {
		p.teardown(ctx, id)
		return nil, p.runtimeErr(ctx, ref, err, "failed to create network %s", name)
	}
	if err := p.runtime.CreateVolume(ctx, name, labels); err != nil {
		p.teardown(ctx, id)
		return nil, p.runtimeErr(ctx, ref, err, "failed to create volume %s", name)
	}

	executables := make(map[string]string, len(resolved.Executables))
	for exeName, exe := range resolved.Executables {
		// Inside the image the index path is the in-container path.
		executables[exeName] = exe.Path
	}

	env := &Environment{
		AcquisitionID: id,
		Ref:           ref,
		Digest:        resolved.Digest,
		Backend:       BackendDocker,
		Packages:      resolved.Packages,
		Executables:   executables,
		Toolchain:     resolved.Toolchain,
		Vars:          resolved.Vars,
		Image:         resolved.Images[resolved.Packages[0]],
		Images:        resolved.Images,
		Network:       name,
		Volume:        name,
	}

	p.mu.Lock()
	p.active[id] = env
	p.mu.Unlock()

	logging.Debug("Environment", "acquired %s on docker network %s", ref, name)
	return env, nil
}

// Release implements Provider. Every container, volume and network carrying
// the acquisition label is removed.
func (p *DockerProvider) Release(ctx context.Context, env *Environment) error {
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

	if p.keep {
		logging.Info("Environment", "keeping docker resources of %s for debugging: %s", env.Ref, env.Network)
		return nil
	}
	if err := p.runtime.RemoveByLabel(ctx, p.AcquisitionLabel(), env.AcquisitionID); err != nil {
		return fmt.Errorf("failed to tear down %s: %w", env.Network, err)
	}
	logging.Debug("Environment", "released %s (%s)", env.Ref, env.AcquisitionID)
	return nil
}

// Active returns the number of unreleased acquisitions.
func (p *DockerProvider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// teardown removes what a failed acquisition created. It outlives ctx but
// not the release timeout.
func (p *DockerProvider) teardown(ctx context.Context, id string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.releaseTimeout)
	defer cancel()
	if err := p.runtime.RemoveByLabel(cleanupCtx, p.AcquisitionLabel(), id); err != nil {
		logging.Warn("Environment", "cleanup of partial acquisition %s failed: %v", id, err)
	}
}

func (p *DockerProvider) runtimeErr(ctx context.Context, ref string, err error, format string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return transient(ref, err, format, args...)
}
