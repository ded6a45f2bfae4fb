package environment

import (
	"context"
	"sort"
)

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// Environment is one acquisition of a resolved environment reference. It
// belongs to exactly one job until it is released and is never mutated.
type Environment struct {
	AcquisitionID string `json:"acquisitionId"`
	Ref           string `json:"ref"`
	// Digest is the content address of the resolved package set. Two
	// acquisitions of the same ref against the same index share a digest.
	Digest   string   `json:"digest"`
	Backend  string   `json:"backend"`
	Packages []string `json:"packages"`

	// Executables maps executable names to paths usable by test cases.
	Executables map[string]string `json:"executables"`
	// Toolchain holds auxiliary runtime references needed by test fixtures.
	Toolchain map[string]string `json:"toolchain,omitempty"`
	Vars      map[string]string `json:"vars,omitempty"`

	// Local backend.
	WorkDir string `json:"workDir,omitempty"`
	BinDir  string `json:"binDir,omitempty"`
	HomeDir string `json:"homeDir,omitempty"`

	// Docker backend.
	Image   string            `json:"image,omitempty"`
	Images  map[string]string `json:"images,omitempty"`
	Network string            `json:"network,omitempty"`
	Volume  string            `json:"volume,omitempty"`
}

// Provider acquires and releases environments. Acquire blocks until the
// environment is ready or ctx is done; every successful Acquire must be
// paired with a Release.
type Provider interface {
	Acquire(ctx context.Context, ref string) (*Environment, error)
	Release(ctx context.Context, env *Environment) error
}

// EnvList returns Vars as sorted KEY=VALUE pairs.
func (e *Environment) EnvList() []string {
	out := make([]string, 0, len(e.Vars))
	for k, v := range e.Vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
