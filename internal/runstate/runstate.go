// Package runstate tracks which run currently owns a workspace root.
// Each run writes a run.json with a fresh run ID; long-lived monitors
// carry the ID they started under and bail out once a newer run has
// replaced it. Cancellation is cooperative: nothing is signalled, stale
// workers simply notice they no longer own the workspace.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

const runFileName = "run.json"

// Monitor records one background watcher attached to a run.
type Monitor struct {
	TaskID  string `json:"task_id"`
	LogFile string `json:"log_file"`
}

// Run is the on-disk record of the active run for a workspace root.
type Run struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Prompts   []string  `json:"prompts"`
	Monitors  []Monitor `json:"monitors"`
}

// Tracker reads and writes the run record for one workspace root.
type Tracker struct {
	root string
}

// New creates a tracker rooted at the given workspace directory.
func New(root string) *Tracker {
	return &Tracker{root: root}
}

func (t *Tracker) runPath() string {
	return filepath.Join(t.root, ".founder-mode", runFileName)
}

// StartRun replaces the workspace's run record with a fresh run ID.
// Any monitors registered under the previous run become stale.
func (t *Tracker) StartRun(prompts []string) (*Run, error) {
	run := &Run{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Prompts:   prompts,
		Monitors:  []Monitor{},
	}
	if err := t.write(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Current returns the workspace's active run record, or nil when no run
// has ever started here.
func (t *Tracker) Current() (*Run, error) {
	data, err := os.ReadFile(t.runPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run record: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run record: %w", err)
	}
	return &run, nil
}

// IsCurrent reports whether runID still owns the workspace. A missing
// run record means no run owns it.
func (t *Tracker) IsCurrent(runID string) (bool, error) {
	run, err := t.Current()
	if err != nil {
		return false, err
	}
	return run != nil && run.RunID == runID, nil
}

// RegisterMonitor appends a monitor to the current run's record. It
// fails if runID is no longer the active run.
func (t *Tracker) RegisterMonitor(runID string, m Monitor) error {
	run, err := t.Current()
	if err != nil {
		return err
	}
	if run == nil || run.RunID != runID {
		return fmt.Errorf("run %s no longer owns %s", runID, t.root)
	}
	run.Monitors = append(run.Monitors, m)
	return t.write(run)
}

// Clear removes the run record, releasing the workspace.
func (t *Tracker) Clear() error {
	err := os.Remove(t.runPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear run record: %w", err)
	}
	return nil
}

func (t *Tracker) write(run *Run) error {
	if err := os.MkdirAll(filepath.Dir(t.runPath()), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if err := renameio.WriteFile(t.runPath(), data, 0644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}
