package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "founder-mode",
	Short: "Wave-scheduled orchestrator for coding agent workflows",
	Long: `founder-mode runs YAML-defined workflows of coding agent prompts.

It schedules tasks into dependency waves, executes each wave's tasks
concurrently through CLI backends (claude, codex, gemini, and friends),
verifies results with marker-driven retry loops, and merges isolated
git worktrees back into the working branch one task at a time.

Core capabilities:
- Validates workflow graphs (cycles, sinks, reachability) before running
- Spawns isolated agents in git worktrees
- Retries tasks with verification feedback until markers confirm done
- Tracks live session status in .founder-mode/status`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// findGitRoot walks up from dir to the repository root.
func findGitRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not inside a git repository")
		}
		dir = parent
	}
}
