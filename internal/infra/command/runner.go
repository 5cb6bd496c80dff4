// Package command runs external tools and captures what they printed.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Log captures one external command invocation.
type Log struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Error is a failed invocation with its captured output.
type Error struct {
	Log Log
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	stderr := strings.TrimSpace(e.Log.Stderr)
	if len(stderr) > 512 {
		stderr = stderr[len(stderr)-512:]
	}
	return fmt.Sprintf("%s exited with %d: %v: %s", e.Log.Command, e.Log.ExitCode, e.Err, stderr)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Log, error)
}

// ExecRunner executes commands via os/exec. Env entries are appended to the
// parent environment.
type ExecRunner struct {
	Env []string
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Log, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	log := Log{
		Command: name,
		Args:    args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		log.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.ExitCode = exitErr.ExitCode()
		}
		return log, &Error{Log: log, Err: err}
	}
	return log, nil
}

// Available reports whether name resolves on PATH (or as a path).
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
