package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/cristianradulescu/fmtorch/internal/logging"
)

// CommandRunner executes a shell command and returns its stdout.
type CommandRunner interface {
	Execute(ctx context.Context, containerName string, command string, stdin io.Reader) ([]byte, error)
}

// DockerCommandRunner runs commands through `docker exec` in a running container.
type DockerCommandRunner struct{}

func NewDockerCommandRunner() *DockerCommandRunner {
	return &DockerCommandRunner{}
}

func (r *DockerCommandRunner) Execute(ctx context.Context, containerName string, command string, stdin io.Reader) ([]byte, error) {
	log.Printf("%s%s Running cmd in %s: %s", logging.LogTagProvider, logging.LogTagContainer, containerName, command)

	var cmd *exec.Cmd
	if stdin != nil {
		cmd = exec.CommandContext(ctx, "docker", "exec", "-i", containerName, "sh", "-c", command)
		cmd.Stdin = stdin
	} else {
		cmd = exec.CommandContext(ctx, "docker", "exec", containerName, "sh", "-c", command)
	}

	return run(cmd)
}

// LocalCommandRunner runs commands with the local shell; the container name is ignored.
type LocalCommandRunner struct{}

func NewLocalCommandRunner() *LocalCommandRunner {
	return &LocalCommandRunner{}
}

func (r *LocalCommandRunner) Execute(ctx context.Context, _ string, command string, stdin io.Reader) ([]byte, error) {
	log.Printf("%s%s Running cmd: %s", logging.LogTagProvider, logging.LogTagContainer, command)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	return run(cmd)
}

// NewCommandRunner picks the docker runner when a container is configured.
func NewCommandRunner(containerName string) CommandRunner {
	if strings.TrimSpace(containerName) != "" {
		return NewDockerCommandRunner()
	}
	return NewLocalCommandRunner()
}

// waitDelay bounds how long a cancelled command may keep its output pipes open.
const waitDelay = 2 * time.Second

func run(cmd *exec.Cmd) ([]byte, error) {
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("cmd returned error %s: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func ValidateContainer(ctx context.Context, containerName string) error {
	if strings.TrimSpace(containerName) == "" {
		return fmt.Errorf("container name is empty")
	}

	cmd := exec.CommandContext(ctx, "docker", "ps", "--filter", fmt.Sprintf("name=%s", containerName), "--format", "{{.Names}}")
	cmdOutput, err := cmd.Output()
	if err != nil {
		return err
	}

	if strings.TrimSpace(string(cmdOutput)) != containerName {
		return fmt.Errorf("container %s is not running; docker output: %s", containerName, cmdOutput)
	}

	return nil
}

// ValidateBinary checks that binaryPath resolves with `command -v` through the runner.
func ValidateBinary(ctx context.Context, runner CommandRunner, containerName string, binaryPath string) error {
	if strings.TrimSpace(binaryPath) == "" {
		return fmt.Errorf("binary path is empty")
	}

	cmdOutput, err := runner.Execute(ctx, containerName, fmt.Sprintf("command -v %s", binaryPath), nil)
	if err != nil || strings.TrimSpace(string(cmdOutput)) == "" {
		return fmt.Errorf("binary %s not found; output: %s", binaryPath, cmdOutput)
	}

	return nil
}
