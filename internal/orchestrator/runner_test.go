package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecRunnerCapturesOutputAndPID(t *testing.T) {
	var pid int
	out, code, err := ExecRunner{}.Run(context.Background(), Invocation{
		Argv:    []string{"sh", "-c", "echo hello"},
		OnStart: func(p int) { pid = p },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 || strings.TrimSpace(out) != "hello" {
		t.Errorf("out = %q, code = %d", out, code)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want the started process id", pid)
	}
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	_, code, err := ExecRunner{}.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestExecRunnerPipesStdin(t *testing.T) {
	out, code, err := ExecRunner{}.Run(context.Background(), Invocation{
		Argv:  []string{"sh", "-c", "cat"},
		Stdin: "piped prompt",
	})
	if err != nil || code != 0 {
		t.Fatalf("Run: code %d, err %v", code, err)
	}
	if out != "piped prompt" {
		t.Errorf("out = %q", out)
	}
}

func TestExecRunnerTeesToLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "task.log")
	_, _, err := ExecRunner{}.Run(context.Background(), Invocation{
		Argv:    []string{"sh", "-c", "echo logged"},
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "logged") {
		t.Errorf("log = %q", data)
	}
}
