package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/state"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

var (
	statusWatch   bool
	statusHistory int
	statusSession string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long: `Display the status of the active (or a named) session.

Shows each task's wave, state, duration, and backend, plus a summary
line. With --watch the view refreshes as the session document changes.

Examples:
  founder-mode status
  founder-mode status --watch
  founder-mode status --session 20260115-093000-ab12cd34
  founder-mode status --history 10`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Refresh as the session progresses")
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "Show the N most recent sessions instead")
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Show a specific session by ID")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, err := findGitRoot(cwd)
	if err != nil {
		root = cwd
	}

	if statusHistory > 0 {
		return showHistory(root, statusHistory)
	}

	store := status.New(root)
	var handle status.Handle
	if statusSession != "" {
		handle, err = store.Open(statusSession)
	} else {
		handle, err = store.Active()
	}
	if err != nil {
		fmt.Println("No active session. Run 'founder-mode run <workflow>' to start.")
		return nil
	}

	if statusWatch {
		return watchSession(handle)
	}

	session, err := status.Load(handle)
	if err != nil {
		return err
	}
	renderSession(session)
	return nil
}

// watchSession re-renders the session whenever its document changes,
// until the session reaches a terminal state.
func watchSession(handle status.Handle) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(handle.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", handle.Dir, err)
	}

	// The ticker covers missed events; writes are atomic renames, so a
	// fresh read after any signal sees a complete document.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		session, err := status.Load(handle)
		if err != nil {
			return err
		}
		fmt.Print("\033[2J\033[H")
		renderSession(session)
		if session.Status.Terminal() {
			return nil
		}

		select {
		case <-watcher.Events:
		case err := <-watcher.Errors:
			if err != nil {
				return err
			}
		case <-ticker.C:
		}
	}
}

var (
	statusColors = map[models.AgentStatus]*color.Color{
		models.AgentQueued:    color.New(color.FgCyan),
		models.AgentRunning:   color.New(color.FgYellow),
		models.AgentComplete:  color.New(color.FgGreen),
		models.AgentFailed:    color.New(color.FgRed),
		models.AgentCancelled: color.New(color.Faint),
	}
	headerColor = color.New(color.Bold)
)

func renderSession(s *models.Session) {
	headerColor.Printf("Session %s (%s)\n", s.SessionID, s.Status)
	fmt.Printf("Workflow: %s  Source: %s  Started: %s ago\n\n",
		s.Source, s.SourceFile, formatDuration(time.Since(s.StartedAt)))

	headerColor.Printf("%-5s %-20s %-10s %-10s %s\n", "WAVE", "TASK", "STATUS", "DURATION", "MODEL")
	for _, a := range s.Agents {
		c, ok := statusColors[a.Status]
		if !ok {
			c = color.New()
		}
		fmt.Printf("%-5d %-20s %s %-10s %s\n",
			a.Wave,
			truncate(a.Name, 20),
			c.Sprintf("%-10s", a.Status),
			agentDuration(a),
			a.Model)
		if a.Error != "" {
			color.New(color.FgRed).Printf("      %s\n", truncate(a.Error, 72))
		}
	}

	fmt.Printf("\nSummary: %d complete, %d running, %d queued, %d failed, %d cancelled (of %d)\n",
		s.Summary.Complete, s.Summary.Running, s.Summary.Queued,
		s.Summary.Failed, s.Summary.Cancelled, s.Summary.Total)
}

func showHistory(root string, limit int) error {
	db, err := state.OpenWorkspace(root)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	entries, err := db.History(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No recorded sessions.")
		return nil
	}

	headerColor.Printf("%-28s %-16s %-10s %-8s %s\n", "SESSION", "WORKFLOW", "STATUS", "TASKS", "STARTED")
	for _, e := range entries {
		tasks := fmt.Sprintf("%d/%d", e.CompleteTasks, e.TotalTasks)
		fmt.Printf("%-28s %-16s %-10s %-8s %s\n",
			e.ID, truncate(e.Workflow, 16), e.Status, tasks,
			e.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func agentDuration(a *models.AgentRecord) string {
	switch {
	case a.DurationSeconds != nil:
		return formatDuration(time.Duration(*a.DurationSeconds * float64(time.Second)))
	case a.StartedAt != nil:
		return formatDuration(time.Since(*a.StartedAt))
	default:
		return "-"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}
