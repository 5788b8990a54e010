package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// EnvOpts describes a long-running environment container. The container
// shares the host network and must listen on the port passed to it in the
// PORT variable.
type EnvOpts struct {
	Image        string
	Command      []string
	Env          map[string]string
	Port         int
	ReadyTimeout time.Duration
	Labels       map[string]string
	CPULimit     float64
	MemoryLimit  int64
}

// Container is a started environment.
type Container struct {
	ID   string
	Port int
	cli  *client.Client
}

func newClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return cli, nil
}

// Ping checks that the docker daemon answers.
func Ping(ctx context.Context) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	if _, err := cli.Ping(ctx, client.PingOptions{}); err != nil {
		return fmt.Errorf("pinging docker daemon: %w", err)
	}
	return nil
}

// StartEnvironment creates and starts the container, then waits until its
// port accepts connections. On any failure the container is removed.
func StartEnvironment(ctx context.Context, opts *EnvOpts) (*Container, error) {
	port := opts.Port
	if port == 0 {
		p, err := FindFreePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	cli, err := newClient()
	if err != nil {
		return nil, err
	}

	envSlice := make([]string, 0, len(opts.Env)+1)
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}
	envSlice = append(envSlice, "PORT="+strconv.Itoa(port))

	labels := map[string]string{"agentarena": "true"}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		NetworkMode: "host",
		Init:        &initTrue,
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Cmd:    opts.Command,
			Env:    envSlice,
			Labels: labels,
		},
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	c := &Container{ID: createResp.ID, Port: port, cli: cli}

	if _, err := cli.ContainerStart(ctx, c.ID, client.ContainerStartOptions{}); err != nil {
		c.Stop(context.Background())
		return nil, fmt.Errorf("starting container: %w", err)
	}

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := WaitForPort(ctx, port, timeout); err != nil {
		c.Stop(context.Background())
		return nil, fmt.Errorf("environment %s did not start: %w", opts.Image, err)
	}
	return c, nil
}

// URL is the base URL of the environment.
func (c *Container) URL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Logs returns the last tail lines of container output.
func (c *Container) Logs(ctx context.Context, tail string) (string, error) {
	logReader, err := c.cli.ContainerLogs(ctx, c.ID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: tail})
	if err != nil {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	defer logReader.Close()
	data, err := io.ReadAll(logReader)
	if err != nil {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	return string(data), nil
}

// Stop force-removes the container and closes the client. Safe to call
// more than once.
func (c *Container) Stop(ctx context.Context) error {
	if c.cli == nil {
		return nil
	}
	_, err := c.cli.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{Force: true})
	c.cli.Close()
	c.cli = nil
	if err != nil {
		return fmt.Errorf("removing container %s: %w", c.ID, err)
	}
	return nil
}

func FindFreePort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, nil
}

// WaitForPort polls until localhost:port accepts TCP connections.
func WaitForPort(ctx context.Context, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("localhost:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return fmt.Errorf("port %d not ready after %s", port, timeout)
}
