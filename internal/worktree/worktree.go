// Package worktree manages per-task isolated workspaces on top of git
// worktrees. Each workspace is an independently mutable checkout created
// from a base ref; completed work merges back into the working branch one
// workspace at a time.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justinDeu/Founder-Mode-sub000/internal/git"
)

// branchPrefix marks branches owned by founder-mode workspaces.
const branchPrefix = "fm-task-"

// Workspace is one isolated checkout owned by a single task for its lifetime.
type Workspace struct {
	// Path is the absolute worktree directory.
	Path string
	// Branch is the branch the workspace's commits land on.
	Branch string
	// TaskID is the task node that owns this workspace.
	TaskID string
	// CreatedAt is when the workspace was created.
	CreatedAt time.Time
}

// MergeResult reports the outcome of merging a workspace into a target.
type MergeResult struct {
	// Clean is true when the merge completed without conflicts.
	Clean bool
	// ConflictPaths lists the unmerged files when Clean is false.
	ConflictPaths []string
}

// Manager creates, merges, and destroys workspaces for one repository.
type Manager struct {
	baseDir  string
	repoPath string
	repo     git.Runner
	// runnerFor builds a runner scoped to a workspace directory, so
	// commits happen inside the workspace rather than the main repo.
	runnerFor func(path string) git.Runner
	mu        sync.Mutex
}

// NewManager creates a Manager. baseDir defaults to
// ~/.cache/founder-mode/worktrees when empty.
func NewManager(baseDir, repoPath string) (*Manager, error) {
	return newManager(baseDir, repoPath, git.NewRunner(repoPath), func(path string) git.Runner {
		return git.NewRunner(path)
	})
}

// NewManagerWithRunner creates a Manager with injected runners, for tests.
func NewManagerWithRunner(baseDir, repoPath string, repo git.Runner, runnerFor func(string) git.Runner) (*Manager, error) {
	return newManager(baseDir, repoPath, repo, runnerFor)
}

func newManager(baseDir, repoPath string, repo git.Runner, runnerFor func(string) git.Runner) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "founder-mode", "worktrees")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}
	return &Manager{
		baseDir:   baseDir,
		repoPath:  repoPath,
		repo:      repo,
		runnerFor: runnerFor,
	}, nil
}

// BaseDir returns the directory workspaces are created under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Create makes a new isolated workspace for the task, branched from baseRef.
// Workspaces for tasks in the same wave share the base ref but never see
// each other's uncommitted changes.
func (m *Manager) Create(taskID, baseRef string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch := fmt.Sprintf("%s%s-%s", branchPrefix, taskID, uuid.New().String()[:8])
	path := filepath.Join(m.baseDir, branch)

	if err := m.repo.WorktreeAddNewBranch(path, branch, baseRef); err != nil {
		return nil, fmt.Errorf("create workspace for task %s: %w", taskID, err)
	}

	return &Workspace{
		Path:      path,
		Branch:    branch,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}, nil
}

// Merge reconciles the workspace's changes into targetBranch. Uncommitted
// workspace changes are committed first so nothing is silently dropped.
// On conflict the in-progress merge is aborted so the target stays clean,
// the workspace is left intact, and the conflicting paths are reported.
func (m *Manager) Merge(ws *Workspace, targetBranch string) (MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wsGit := m.runnerFor(ws.Path)
	dirty, err := wsGit.HasChanges()
	if err != nil {
		return MergeResult{}, fmt.Errorf("check workspace changes: %w", err)
	}
	if dirty {
		if err := wsGit.AddAll(); err != nil {
			return MergeResult{}, fmt.Errorf("stage workspace changes: %w", err)
		}
		if err := wsGit.Commit(fmt.Sprintf("task %s: work in progress", ws.TaskID)); err != nil {
			return MergeResult{}, fmt.Errorf("commit workspace changes: %w", err)
		}
	}

	if err := m.repo.CheckoutBranch(targetBranch); err != nil {
		return MergeResult{}, fmt.Errorf("checkout %s: %w", targetBranch, err)
	}

	msg := fmt.Sprintf("merge task %s", ws.TaskID)
	if err := m.repo.MergeNoFFMessage(ws.Branch, msg); err != nil {
		paths, confErr := m.repo.ConflictedFiles()
		if confErr != nil || len(paths) == 0 {
			// Not a content conflict; surface the raw merge failure.
			return MergeResult{}, fmt.Errorf("merge task %s: %w", ws.TaskID, err)
		}
		if abortErr := m.repo.MergeAbort(); abortErr != nil {
			return MergeResult{}, fmt.Errorf("abort conflicted merge: %w", abortErr)
		}
		return MergeResult{Clean: false, ConflictPaths: paths}, nil
	}

	return MergeResult{Clean: true}, nil
}

// Destroy removes the workspace and its branch.
func (m *Manager) Destroy(ws *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.WorktreeRemove(ws.Path); err != nil {
		// Fall back to direct removal if git lost track of it.
		if rmErr := os.RemoveAll(ws.Path); rmErr != nil {
			return fmt.Errorf("remove workspace %s: %w", ws.Path, err)
		}
	}
	if err := m.repo.DeleteBranch(ws.Branch); err != nil {
		return fmt.Errorf("delete workspace branch %s: %w", ws.Branch, err)
	}
	return nil
}

// ListOwned returns workspaces whose branches carry the founder-mode prefix.
func (m *Manager) ListOwned() ([]*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.repo.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseOwned(out), nil
}

// CleanupOrphans removes owned workspaces whose branch is not in keep.
// It returns the number removed.
func (m *Manager) CleanupOrphans(keep []string) (int, error) {
	owned, err := m.ListOwned()
	if err != nil {
		return 0, err
	}

	keepSet := make(map[string]bool, len(keep))
	for _, b := range keep {
		keepSet[b] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, ws := range owned {
		if keepSet[ws.Branch] {
			continue
		}
		if err := m.repo.WorktreeRemove(ws.Path); err != nil {
			if rmErr := os.RemoveAll(ws.Path); rmErr != nil {
				continue
			}
		}
		_ = m.repo.DeleteBranch(ws.Branch)
		removed++
	}

	_ = m.repo.WorktreePrune()
	return removed, nil
}

// parseOwned extracts founder-mode workspaces from porcelain output.
func parseOwned(output string) []*Workspace {
	var owned []*Workspace
	var current *Workspace

	flush := func() {
		if current != nil && strings.HasPrefix(current.Branch, branchPrefix) {
			rest := strings.TrimPrefix(current.Branch, branchPrefix)
			// Branch form is fm-task-<id>-<uuid8>.
			if i := strings.LastIndex(rest, "-"); i > 0 {
				current.TaskID = rest[:i]
			}
			owned = append(owned, current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current = &Workspace{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()

	return owned
}
