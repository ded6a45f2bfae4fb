package suite

import (
	"context"
	"fmt"
	"strings"

	"relaymatrix/internal/environment"
)

// DefaultVolumeMount is where the acquisition volume is mounted in case
// containers.
const DefaultVolumeMount = "/workspace"

// ContainerLauncher runs cases as containers attached to the acquisition's
// network and volume.
type ContainerLauncher struct {
	Runtime environment.ContainerRuntime
	// LabelKey tags case containers with the acquisition id so that releasing
	// the environment also removes stragglers.
	LabelKey    string
	VolumeMount string
}

// NewContainerLauncher creates a launcher driving runtime.
func NewContainerLauncher(runtime environment.ContainerRuntime, labelKey string) *ContainerLauncher {
	return &ContainerLauncher{
		Runtime:     runtime,
		LabelKey:    labelKey,
		VolumeMount: DefaultVolumeMount,
	}
}

// Launch implements Launcher.
func (l *ContainerLauncher) Launch(ctx context.Context, env *environment.Environment, inv Invocation) (int, error) {
	image := inv.Image
	if image == "" {
		image = env.Image
	}
	if image == "" {
		return -1, fmt.Errorf("no image to run case %s in", inv.Case)
	}

	labels := map[string]string{}
	if l.LabelKey != "" {
		labels[l.LabelKey] = env.AcquisitionID
	}

	spec := environment.ContainerSpec{
		Name:        containerName(env, inv.Case),
		Image:       image,
		Cmd:         append([]string{inv.Command}, inv.Args...),
		Env:         append(env.EnvList(), inv.Env...),
		WorkingDir:  l.VolumeMount,
		Network:     env.Network,
		Volume:      env.Volume,
		VolumeMount: l.VolumeMount,
		Labels:      labels,
	}

	code, err := l.Runtime.RunContainer(ctx, spec, inv.Stdout, inv.Stderr)
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if err != nil {
		return -1, err
	}
	return int(code), nil
}

func containerName(env *environment.Environment, caseName string) string {
	prefix := env.Network
	if prefix == "" {
		prefix = "relaymatrix-" + env.AcquisitionID
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, caseName)
	return prefix + "-" + name
}
