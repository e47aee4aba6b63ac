package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/config"
	"github.com/justinDeu/Founder-Mode-sub000/internal/state"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/internal/worktree"
)

var (
	cleanupDays   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned worktrees and old sessions",
	Long: `Clean up leftover state from finished or crashed runs.

This command:
  - Removes founder-mode task worktrees and their branches
  - Runs git worktree prune
  - Deletes session status directories older than the retention window
  - Drops the matching session index entries

Use this after a crash or interrupted session to reclaim disk space.

Examples:
  founder-mode cleanup             # Retention from config (default 7 days)
  founder-mode cleanup --days 30   # Keep a month of history
  founder-mode cleanup --dry-run   # Show what would be removed`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Override retention window in days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	keepDays := cfg.Cleanup.KeepDays
	if cleanupDays > 0 {
		keepDays = cleanupDays
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	repoPath, err := findGitRoot(cwd)
	if err != nil {
		return err
	}

	mgr, err := worktree.NewManager(cfg.Worktrees.BaseDir, repoPath)
	if err != nil {
		return err
	}

	if cleanupDryRun {
		owned, err := mgr.ListOwned()
		if err != nil {
			return err
		}
		for _, ws := range owned {
			fmt.Printf("would remove worktree %s (%s)\n", ws.Path, ws.Branch)
		}
		fmt.Printf("would purge sessions started before %s\n", cutoff.Format("2006-01-02"))
		return nil
	}

	removed, err := mgr.CleanupOrphans(nil)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d worktree(s)\n", removed)

	store := status.New(repoPath)
	purged, err := store.RemoveOlderThan(cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d session director(ies) older than %d day(s)\n", purged, keepDays)

	index, err := state.OpenWorkspace(repoPath)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Migrate(); err != nil {
		return err
	}
	entries, err := index.PurgeBefore(cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Dropped %d index entr(ies)\n", len(entries))
	return nil
}
