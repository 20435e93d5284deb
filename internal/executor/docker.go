package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultDockerImage is used when no image is configured.
const DefaultDockerImage = "ubuntu:24.04"

// Docker runs scripts inside a disposable container. The record's working
// directory is mounted as the container working directory so produced files
// land where the store expects them.
type Docker struct {
	// Image is the container image to run. Empty uses DefaultDockerImage.
	Image string
}

// NewDocker returns a containerized executor.
func NewDocker(image string) *Docker {
	return &Docker{Image: image}
}

// Name implements Executor.
func (d *Docker) Name() string { return "docker" }

// Run implements Executor.
func (d *Docker) Run(ctx context.Context, spec RunSpec) (int, error) {
	image := d.Image
	if image == "" {
		image = DefaultDockerImage
	}
	args := []string{
		"run", "--rm", "--interactive",
		fmt.Sprintf("--name=%s", spec.RecordID),
	}
	if spec.Dir != "" {
		args = append(args,
			fmt.Sprintf("--volume=%s:/data", spec.Dir),
			"--workdir=/data",
		)
	}
	args = append(args, image, "/bin/bash")
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = strings.NewReader(scriptPrologue + spec.Script + "\n")
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executor: run container: %w", err)
	}
	return 0, nil
}

// Terminate force-removes the container for a record, if one is running.
func (d *Docker) Terminate(ctx context.Context, recordID string) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", recordID)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("executor: terminate %s: %w", recordID, err)
	}
	return nil
}
