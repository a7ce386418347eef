// Package sandbox provides the shell tool's exec backends: an ephemeral
// Docker container per command, and (via the wasm subpackage) an in-process
// WASI host for trusted skill scripts. Grounded on the teacher's
// internal/tools/docker.go.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/stewardhq/steward/internal/tools"
)

// DockerSandbox runs each command in a fresh, auto-removed container bound
// to a single workspace mount.
type DockerSandbox struct {
	client      *client.Client
	image       string
	memoryBytes int64
	networkMode string
	workspace   string
}

// NewDockerSandbox creates a sandbox backed by the local Docker daemon
// (via the standard DOCKER_HOST / DOCKER_* environment variables).
func NewDockerSandbox(image string, memoryMB int64, networkMode, workspace string) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}

	if image == "" {
		image = "golang:alpine"
	}
	if memoryMB <= 0 {
		memoryMB = 512
	}
	if networkMode == "" {
		networkMode = "none"
	}

	return &DockerSandbox{
		client:      cli,
		image:       image,
		memoryBytes: memoryMB * 1024 * 1024,
		networkMode: networkMode,
		workspace:   workspace,
	}, nil
}

// Exec runs command in a new container, returning once it exits or the
// timeout elapses. Satisfies the internal/tools.Sandbox interface.
func (d *DockerSandbox) Exec(ctx context.Context, command, workDir string, env map[string]string, timeoutMs int) (tools.Result, error) {
	if timeoutMs <= 0 {
		timeoutMs = 30_000
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	containerWorkDir := "/workspace"
	if workDir != "" {
		containerWorkDir = workDir
	}

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	resp, err := d.client.ContainerCreate(execCtx, &container.Config{
		Image:      d.image,
		Cmd:        []string{"sh", "-c", command},
		Env:        envList,
		WorkingDir: containerWorkDir,
		Tty:        false,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory: d.memoryBytes,
		},
		NetworkMode: container.NetworkMode(d.networkMode),
		Binds:       []string{fmt.Sprintf("%s:/workspace", d.workspace)},
		AutoRemove:  true,
	}, nil, nil, "")
	if err != nil {
		return tools.Result{}, fmt.Errorf("sandbox: create container: %w", err)
	}
	containerID := resp.ID

	if err := d.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return tools.Result{}, fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := d.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		return tools.Result{}, fmt.Errorf("sandbox: wait container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-execCtx.Done():
		_ = d.client.ContainerKill(context.Background(), containerID, "SIGKILL")
		return tools.Result{Stderr: "command timed out", ExitCode: -1, TimedOut: true}, nil
	}

	out, err := d.client.ContainerLogs(execCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return tools.Result{ExitCode: exitCode}, fmt.Errorf("sandbox: get logs: %w", err)
	}
	defer out.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdoutBuf, &stderrBuf, out)

	return tools.Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), ExitCode: exitCode}, nil
}

// Close releases the underlying Docker client connection.
func (d *DockerSandbox) Close() error {
	return d.client.Close()
}
