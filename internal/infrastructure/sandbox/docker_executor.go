package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

const (
	// Fixed in-container mount points of the analyzer contract.
	containerWorkspacePath = "/workspace"
	containerOutputPath    = "/output"

	// 128 + SIGKILL(9); the code a force-killed container exits with.
	sigkillExitCode = 137
)

// dockerAPI is the slice of the docker client the executor touches.
// Tests substitute a fake to drive the timeout and kill paths.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// DockerExecutor runs one analyzer image as an isolated container with
// resource limits and a wall-clock timeout.
type DockerExecutor struct {
	cli dockerAPI
}

func NewDockerExecutor(dockerHost string) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errs.Wrap(err, "create docker client")
	}
	return &DockerExecutor{cli: cli}, nil
}

func (e *DockerExecutor) Run(ctx context.Context, spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
	if ctx == nil {
		return ports.ExecutionResult{}, errors.New("context is required")
	}
	if spec.Image == "" {
		return ports.ExecutionResult{}, errors.New("image is required")
	}
	if spec.Timeout <= 0 {
		return ports.ExecutionResult{}, errors.New("timeout is required")
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "sandbox.docker"),
		slog.String("image", spec.Image),
	)

	containerID, err := e.createContainer(ctx, spec)
	if err != nil {
		return dockerFailure(err, "create container"), nil
	}

	// Guaranteed cleanup on every exit path, including panics. The
	// background context keeps removal working after ctx is cancelled.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			logging.Warn(logCtx, "container remove failed", slog.Any("err", errs.Loggable(err)))
		}
	}()

	if err := e.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return dockerFailure(err, "start container"), nil
	}

	logDone := e.streamLogs(logCtx, containerID, spec.LogPath)

	waitCh, waitErrCh := e.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	var exitCode int64
	select {
	case status := <-waitCh:
		if status.Error != nil {
			return dockerFailure(errors.New(status.Error.Message), "wait container"), nil
		}
		exitCode = status.StatusCode
	case err := <-waitErrCh:
		return dockerFailure(err, "wait container"), nil
	case <-timer.C:
		e.forceKill(logCtx, containerID)
		<-logDone
		return ports.ExecutionResult{
			Success:   false,
			ExitCode:  sigkillExitCode,
			ErrorType: analysis.ExecErrTimeout,
			Message:   fmt.Sprintf("analyzer exceeded timeout of %s", spec.Timeout),
		}, nil
	case <-ctx.Done():
		e.forceKill(logCtx, containerID)
		<-logDone
		return ports.ExecutionResult{}, errs.Wrap(ctx.Err(), "execution cancelled")
	}

	<-logDone

	oomKilled := false
	if exitCode == sigkillExitCode {
		if inspect, err := e.cli.ContainerInspect(ctx, containerID); err == nil && inspect.State != nil {
			oomKilled = inspect.State.OOMKilled
		}
	}

	result := ClassifyExit(exitCode, oomKilled)
	logging.Info(logCtx, "analyzer container finished",
		slog.Int64("exit_code", exitCode),
		slog.Bool("success", result.Success),
		slog.String("error_type", string(result.ErrorType)),
	)
	return result, nil
}

func (e *DockerExecutor) createContainer(ctx context.Context, spec ports.ExecutionSpec) (string, error) {
	cfg := &container.Config{
		Image: spec.Image,
		Env:   envList(spec.Env),
	}
	hostCfg := &container.HostConfig{
		Binds: []string{
			spec.WorkspaceDir + ":" + containerWorkspacePath + ":ro",
			spec.OutputDir + ":" + containerOutputPath + ":rw",
		},
	}
	if spec.MemoryLimitBytes > 0 {
		hostCfg.Resources.Memory = spec.MemoryLimitBytes
	}
	if spec.CPULimit > 0 {
		hostCfg.Resources.NanoCPUs = int64(spec.CPULimit * 1e9)
	}

	created, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err == nil {
		return created.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", err
	}

	// Image absent locally: pull, then create again.
	reader, pullErr := e.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
	if pullErr != nil {
		return "", fmt.Errorf("pull image %q: %w", spec.Image, pullErr)
	}
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	created, err = e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// streamLogs copies the container's stdout+stderr to the log file for
// the full container lifetime, independent of run outcome.
func (e *DockerExecutor) streamLogs(ctx context.Context, containerID, logPath string) <-chan struct{} {
	done := make(chan struct{})
	if logPath == "" {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		logFile, err := os.Create(logPath)
		if err != nil {
			logging.Warn(ctx, "create analyzer log file failed", slog.Any("err", errs.Loggable(err)))
			return
		}
		defer logFile.Close()

		reader, err := e.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			logging.Warn(ctx, "attach analyzer logs failed", slog.Any("err", errs.Loggable(err)))
			return
		}
		defer reader.Close()

		if _, err := stdcopy.StdCopy(logFile, logFile, reader); err != nil && !errors.Is(err, io.EOF) {
			logging.Warn(ctx, "stream analyzer logs failed", slog.Any("err", errs.Loggable(err)))
		}
	}()
	return done
}

func (e *DockerExecutor) forceKill(ctx context.Context, containerID string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.cli.ContainerKill(killCtx, containerID, "KILL"); err != nil {
		logging.Warn(ctx, "container kill failed", slog.Any("err", errs.Loggable(err)))
	}
}

// ClassifyExit applies the exit-code policy: 0 and 1 are successful
// completion (exit 1 means "findings present"), 137 with an OOM kill on
// record is memory exhaustion, anything else is an analyzer failure.
func ClassifyExit(exitCode int64, oomKilled bool) ports.ExecutionResult {
	switch {
	case exitCode == 0 || exitCode == 1:
		return ports.ExecutionResult{Success: true, ExitCode: exitCode}
	case exitCode == sigkillExitCode && oomKilled:
		return ports.ExecutionResult{
			Success:   false,
			ExitCode:  exitCode,
			ErrorType: analysis.ExecErrOOM,
			Message:   "analyzer was killed for exceeding its memory limit",
		}
	default:
		return ports.ExecutionResult{
			Success:   false,
			ExitCode:  exitCode,
			ErrorType: analysis.ExecErrExitCode,
			Message:   fmt.Sprintf("analyzer exited with unsupported status %d", exitCode),
		}
	}
}

func dockerFailure(err error, action string) ports.ExecutionResult {
	return ports.ExecutionResult{
		Success:   false,
		ErrorType: analysis.ExecErrDocker,
		Message:   fmt.Sprintf("%s: %v", action, err),
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
