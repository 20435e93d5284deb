package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Local runs scripts in a host shell.
type Local struct {
	// Shell defaults to /bin/bash.
	Shell string
}

// NewLocal returns a host-shell executor.
func NewLocal() *Local {
	return &Local{Shell: "/bin/bash"}
}

// Name implements Executor.
func (l *Local) Name() string { return "local" }

// Run implements Executor. The script is piped to the shell's stdin behind
// the standard prologue; combined output goes to spec.Output.
func (l *Local) Run(ctx context.Context, spec RunSpec) (int, error) {
	shell := l.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd := exec.CommandContext(ctx, shell)
	cmd.Dir = spec.Dir
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
		return -1, fmt.Errorf("executor: run script: %w", err)
	}
	return 0, nil
}
