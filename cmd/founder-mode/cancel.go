package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/runstate"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active session",
	Long: `Cancel the workspace's active session.

Every queued or running task is marked cancelled and the run record is
cleared, so running monitors and any in-flight orchestrator notice the
takeover and stop. Already-finished tasks keep their results.`,
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, err := findGitRoot(cwd)
	if err != nil {
		root = cwd
	}

	store := status.New(root)
	handle, err := store.Active()
	if err != nil {
		fmt.Println("No active session to cancel.")
		return nil
	}

	session, err := store.CancelSession(handle)
	if err != nil {
		return err
	}

	// Clearing the run record makes every monitor holding the old run
	// ID stale, which stops them cooperatively.
	if err := runstate.New(root).Clear(); err != nil {
		return err
	}

	fmt.Printf("Session %s cancelled (%d task(s) stopped)\n",
		handle.ID, session.Summary.Cancelled)
	return nil
}
