package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Invocation describes one backend CLI call. OnStart, when set, is
// called with the process ID once the command has started.
type Invocation struct {
	Argv    []string
	Stdin   string
	Dir     string
	Env     []string
	LogPath string
	OnStart func(pid int)
}

// CommandRunner executes backend invocations. It is an interface so
// tests can substitute a fake for the real subprocess runner.
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) (output string, exitCode int, err error)
}

// ExecRunner runs invocations as real subprocesses, teeing output to
// the invocation's log file.
type ExecRunner struct{}

// Run executes the invocation and returns its combined output. A
// non-zero exit is reported through exitCode, not err; err is reserved
// for failures to run the command at all.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (string, int, error) {
	if len(inv.Argv) == 0 {
		return "", 0, fmt.Errorf("empty invocation")
	}

	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	var buf bytes.Buffer
	var sink io.Writer = &buf
	if inv.LogPath != "" {
		f, err := os.OpenFile(inv.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer f.Close()
			sink = io.MultiWriter(&buf, f)
		}
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		return "", -1, fmt.Errorf("start %s: %w", inv.Argv[0], err)
	}
	if inv.OnStart != nil {
		inv.OnStart(cmd.Process.Pid)
	}

	err := cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return buf.String(), exitErr.ExitCode(), nil
		}
		return buf.String(), -1, fmt.Errorf("run %s: %w", inv.Argv[0], err)
	}
	return buf.String(), 0, nil
}
