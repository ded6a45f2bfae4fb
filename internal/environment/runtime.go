package environment

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// ContainerSpec describes one test-case container.
type ContainerSpec struct {
	Name        string
	Image       string
	Cmd         []string
	Env         []string
	WorkingDir  string
	Network     string
	Volume      string
	VolumeMount string
	Labels      map[string]string
}

// ContainerRuntime is the subset of the docker API the docker backend and
// the container launcher need.
type ContainerRuntime interface {
	CreateNetwork(ctx context.Context, name string, labels map[string]string) error
	CreateVolume(ctx context.Context, name string, labels map[string]string) error
	// RemoveByLabel removes containers, volumes and networks labelled
	// key=value. Resources that vanish concurrently are not an error.
	RemoveByLabel(ctx context.Context, key, value string) error
	// RunContainer runs spec to completion, streaming its output, and returns
	// the exit status. When ctx is done the container is force-removed.
	RunContainer(ctx context.Context, spec ContainerSpec, stdout, stderr io.Writer) (int64, error)
}

// MobyRuntime implements ContainerRuntime with the docker engine API.
type MobyRuntime struct {
	client *client.Client
}

// NewMobyRuntime connects using the standard DOCKER_* environment.
func NewMobyRuntime() (*MobyRuntime, error) {
	c, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &MobyRuntime{client: c}, nil
}

// Close releases the underlying client.
func (m *MobyRuntime) Close() error {
	return m.client.Close()
}

func (m *MobyRuntime) CreateNetwork(ctx context.Context, name string, labels map[string]string) error {
	if _, err := m.client.NetworkCreate(ctx, name, client.NetworkCreateOptions{
		Labels: labels,
	}); err != nil {
		return fmt.Errorf("create network %q: %w", name, err)
	}
	return nil
}

func (m *MobyRuntime) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	if _, err := m.client.VolumeCreate(ctx, client.VolumeCreateOptions{
		Name:   name,
		Labels: labels,
	}); err != nil {
		return fmt.Errorf("create volume %q: %w", name, err)
	}
	return nil
}

func (m *MobyRuntime) RemoveByLabel(ctx context.Context, key, value string) error {
	f := make(client.Filters).Add("label", key+"="+value)

	containers, err := m.client.ContainerList(ctx, client.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return fmt.Errorf("list containers (%s=%s): %w", key, value, err)
	}
	for _, c := range containers.Items {
		if _, err := m.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove container %q: %w", c.ID, err)
		}
	}

	vols, err := m.client.VolumeList(ctx, client.VolumeListOptions{Filters: f})
	if err != nil {
		return fmt.Errorf("list volumes (%s=%s): %w", key, value, err)
	}
	for _, v := range vols.Items {
		if v.Name == "" {
			continue
		}
		if _, err := m.client.VolumeRemove(ctx, v.Name, client.VolumeRemoveOptions{}); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove volume %q: %w", v.Name, err)
		}
	}

	nets, err := m.client.NetworkList(ctx, client.NetworkListOptions{Filters: f})
	if err != nil {
		return fmt.Errorf("list networks (%s=%s): %w", key, value, err)
	}
	for _, n := range nets.Items {
		if n.ID == "" {
			continue
		}
		if _, err := m.client.NetworkRemove(ctx, n.ID, client.NetworkRemoveOptions{}); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove network %q (%s): %w", n.Name, n.ID, err)
		}
	}
	return nil
}

func (m *MobyRuntime) RunContainer(ctx context.Context, spec ContainerSpec, stdout, stderr io.Writer) (int64, error) {
	hostConfig := &container.HostConfig{}
	if spec.Volume != "" {
		hostConfig.Mounts = []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: spec.Volume,
			Target: spec.VolumeMount,
		}}
	}
	var netConfig *network.NetworkingConfig
	if spec.Network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.Network: {}},
		}
	}

	created, err := m.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:      spec.Image,
			Cmd:        spec.Cmd,
			Env:        spec.Env,
			WorkingDir: spec.WorkingDir,
			Labels:     spec.Labels,
		},
		HostConfig:       hostConfig,
		NetworkingConfig: netConfig,
		Name:             spec.Name,
		Image:            spec.Image,
	})
	if err != nil {
		return -1, fmt.Errorf("create container %q: %w", spec.Name, err)
	}
	id := created.ID

	defer func() {
		// Force removal also kills a container still running after ctx ended.
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultReleaseTimeout)
		defer cancel()
		if _, err := m.client.ContainerRemove(removeCtx, id, client.ContainerRemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			fmt.Fprintf(stderr, "remove container %s: %v\n", spec.Name, err)
		}
	}()

	if _, err := m.client.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return -1, fmt.Errorf("start container %q: %w", spec.Name, err)
	}

	rc, err := m.client.ContainerLogs(ctx, id, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return -1, fmt.Errorf("logs container %q: %w", spec.Name, err)
	}
	logs := followLogs(rc, stdout, stderr)

	wait := m.client.ContainerWait(ctx, id, client.ContainerWaitOptions{})
	var status int64
	select {
	case err := <-wait.Error:
		if ctx.Err() != nil {
			logs.stop()
			return -1, ctx.Err()
		}
		if err != nil {
			logs.stop()
			return -1, fmt.Errorf("wait container %q: %w", spec.Name, err)
		}
	case res := <-wait.Result:
		status = res.StatusCode
	case <-ctx.Done():
		logs.stop()
		return -1, ctx.Err()
	}

	err = logs.wait()
	_ = rc.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return status, fmt.Errorf("stream logs for %q: %w", spec.Name, err)
	}
	return status, nil
}

// logFollower copies a container log stream into the case's writers on its
// own goroutine. Once wait or stop returns the writers are no longer touched.
type logFollower struct {
	rc   io.Closer
	done chan error
}

func followLogs(rc io.ReadCloser, stdout, stderr io.Writer) *logFollower {
	f := &logFollower{rc: rc, done: make(chan error, 1)}
	go func() {
		f.done <- demuxLogs(stdout, stderr, rc)
	}()
	return f
}

// wait blocks until the stream ends on its own.
func (f *logFollower) wait() error {
	return <-f.done
}

// stop closes the stream to interrupt the copy and waits for it to exit.
func (f *logFollower) stop() {
	_ = f.rc.Close()
	<-f.done
}

// demuxLogs splits the multiplexed docker log stream: an 8-byte header whose
// first byte selects stdout (1) or stderr (2) and whose last four bytes hold
// the big-endian payload size.
func demuxLogs(dstOut, dstErr io.Writer, src io.Reader) error {
	r := bufio.NewReader(src)
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		w := dstOut
		if header[0] == 2 {
			w = dstErr
		}
		if _, err := io.CopyN(w, r, int64(size)); err != nil {
			return fmt.Errorf("copy docker log payload: %w", err)
		}
	}
}
