package supervisor

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// ContainerLauncher runs the server inside a Docker container. The container
// is created with a TTY and an open stdin so the attach stream behaves like
// the local process pipes: one raw line-oriented stream, commands written to
// the same connection.
type ContainerLauncher struct {
	Image       string
	Name        string
	Env         map[string]string
	Ports       []string // "host:container/proto"
	Binds       map[string]string
	MemoryLimit string

	cli *client.Client
}

func NewContainerLauncher(image, name string) (*ContainerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &ContainerLauncher{Image: image, Name: name, cli: cli}, nil
}

func (l *ContainerLauncher) Close() error { return l.cli.Close() }

func (l *ContainerLauncher) CommandLine() string {
	return "docker:" + l.Image
}

func (l *ContainerLauncher) Validate() error {
	if l.Image == "" {
		return fmt.Errorf("no container image configured")
	}
	if _, err := l.cli.Ping(context.Background()); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

func (l *ContainerLauncher) Launch(ctx context.Context) (Handle, error) {
	// Best effort: the image may already exist locally.
	if reader, err := l.cli.ImagePull(ctx, l.Image, image.PullOptions{}); err == nil {
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	// Remove a stale container left over from a previous run.
	l.cli.ContainerRemove(ctx, l.Name, container.RemoveOptions{Force: true})

	env := make([]string, 0, len(l.Env))
	for k, v := range l.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, p := range l.Ports {
		proto := "tcp"
		if idx := strings.Index(p, "/"); idx != -1 {
			proto = p[idx+1:]
			p = p[:idx]
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		containerPort := nat.Port(parts[1] + "/" + proto)
		exposedPorts[containerPort] = struct{}{}
		portBindings[containerPort] = []nat.PortBinding{{HostPort: parts[0]}}
	}

	mounts := make([]mount.Mount, 0, len(l.Binds))
	for hostPath, containerPath := range l.Binds {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: hostPath,
			Target: containerPath,
		})
	}

	hostCfg := &container.HostConfig{
		PortBindings: portBindings,
		Mounts:       mounts,
	}
	if mem := parseMemory(l.MemoryLimit); mem > 0 {
		hostCfg.Memory = mem
	}

	resp, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:        l.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Tty:          true,
		OpenStdin:    true,
		AttachStdin:  true,
	}, hostCfg, nil, nil, l.Name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	attach, err := l.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		l.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("attach container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		l.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("start container: %w", err)
	}

	pid := 0
	if inspect, err := l.cli.ContainerInspect(ctx, resp.ID); err == nil && inspect.State != nil {
		pid = inspect.State.Pid
	}

	return &containerHandle{cli: l.cli, id: resp.ID, pid: pid, attach: attach}, nil
}

type containerHandle struct {
	cli    *client.Client
	id     string
	pid    int
	attach types.HijackedResponse
}

func (h *containerHandle) PID() int         { return h.pid }
func (h *containerHandle) Stdin() io.Writer { return h.attach.Conn }

// Stdout carries the whole TTY stream; a TTY container has no separate
// stderr channel.
func (h *containerHandle) Stdout() io.Reader { return h.attach.Reader }
func (h *containerHandle) Stderr() io.Reader { return strings.NewReader("") }

func (h *containerHandle) Wait() int {
	waitCh, errCh := h.cli.ContainerWait(context.Background(), h.id, container.WaitConditionNotRunning)
	code := -1
	select {
	case res := <-waitCh:
		code = int(res.StatusCode)
	case <-errCh:
	}
	h.attach.Close()
	h.cli.ContainerRemove(context.Background(), h.id, container.RemoveOptions{Force: true})
	return code
}

func (h *containerHandle) Kill() error {
	return h.cli.ContainerKill(context.Background(), h.id, "SIGKILL")
}

// parseMemory parses a memory string like "2G" or "512M" to bytes.
func parseMemory(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0
	}
	multiplier := int64(1)
	if strings.HasSuffix(s, "G") {
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	} else if strings.HasSuffix(s, "M") {
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	}
	val, _ := strconv.ParseInt(s, 10, 64)
	return val * multiplier
}
