package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Defaults.MaxIterations != 3 {
		t.Errorf("max_iterations = %d, want 3", cfg.Defaults.MaxIterations)
	}
	if cfg.Defaults.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %s, want 2s", cfg.Defaults.PollInterval)
	}
	if cfg.Timeouts.Task != 0 {
		t.Errorf("timeouts.task = %s, want 0", cfg.Timeouts.Task)
	}
	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute}
	if len(cfg.Timeouts.StallCheckpoints) != len(want) {
		t.Fatalf("stall_checkpoints = %v, want %v", cfg.Timeouts.StallCheckpoints, want)
	}
	for i, d := range want {
		if cfg.Timeouts.StallCheckpoints[i] != d {
			t.Errorf("stall_checkpoints[%d] = %s, want %s", i, cfg.Timeouts.StallCheckpoints[i], d)
		}
	}
	if cfg.Cleanup.KeepDays != 7 {
		t.Errorf("cleanup.keep_days = %d, want 7", cfg.Cleanup.KeepDays)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := writeConfig(t, `
defaults:
  max_iterations: 5
  poll_interval: 500ms
timeouts:
  task: 30m
  stall_checkpoints:
    - 1m
    - 2m
cleanup:
  keep_days: 14
worktrees:
  base_dir: /var/tmp/fm-worktrees
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Defaults.MaxIterations != 5 {
		t.Errorf("max_iterations = %d, want 5", cfg.Defaults.MaxIterations)
	}
	if cfg.Defaults.PollInterval != 500*time.Millisecond {
		t.Errorf("poll_interval = %s, want 500ms", cfg.Defaults.PollInterval)
	}
	if cfg.Timeouts.Task != 30*time.Minute {
		t.Errorf("timeouts.task = %s, want 30m", cfg.Timeouts.Task)
	}
	if len(cfg.Timeouts.StallCheckpoints) != 2 || cfg.Timeouts.StallCheckpoints[1] != 2*time.Minute {
		t.Errorf("stall_checkpoints = %v", cfg.Timeouts.StallCheckpoints)
	}
	if cfg.Cleanup.KeepDays != 14 {
		t.Errorf("cleanup.keep_days = %d, want 14", cfg.Cleanup.KeepDays)
	}
	if cfg.Worktrees.BaseDir != "/var/tmp/fm-worktrees" {
		t.Errorf("worktrees.base_dir = %q", cfg.Worktrees.BaseDir)
	}
}

func TestLoadFromPathPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
defaults:
  max_iterations: 1
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Defaults.MaxIterations != 1 {
		t.Errorf("max_iterations = %d, want 1", cfg.Defaults.MaxIterations)
	}
	if cfg.Defaults.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %s, want default 2s", cfg.Defaults.PollInterval)
	}
	if cfg.Cleanup.KeepDays != 7 {
		t.Errorf("cleanup.keep_days = %d, want default 7", cfg.Cleanup.KeepDays)
	}
}

func TestLoadFromPathRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero iterations", "defaults:\n  max_iterations: 0\n"},
		{"negative poll interval", "defaults:\n  poll_interval: -1s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := LoadFromPath(path); err == nil {
				t.Error("bad config accepted")
			}
		})
	}
}

func TestWorktreeBaseDirExpandsEnv(t *testing.T) {
	t.Setenv("FM_TEST_BASE", "/srv/worktrees")
	path := writeConfig(t, "worktrees:\n  base_dir: ${FM_TEST_BASE}/x\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Worktrees.BaseDir != "/srv/worktrees/x" {
		t.Errorf("base_dir = %q, want /srv/worktrees/x", cfg.Worktrees.BaseDir)
	}
}
