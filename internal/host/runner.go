package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for the account and package providers.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run executes name with args and returns stdout, stderr and the exit code.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}

	exitCode := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// runChecked runs a command and folds stderr into the returned error.
func runChecked(ctx context.Context, runner CommandRunner, name string, args ...string) ([]byte, error) {
	stdout, stderr, code, err := runner.Run(ctx, name, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return stdout, fmt.Errorf("%s %s: exit %d: %s", name, strings.Join(args, " "), code, msg)
	}
	return stdout, nil
}
