// Package git provides an interface for the git operations the worktree
// manager and coordinator depend on. The interface exists so tests can
// substitute a fake runner.
package git

// Runner defines the git operations used by founder-mode.
type Runner interface {
	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the local branch exists.
	BranchExists(name string) (bool, error)
	// CreateBranchFrom creates a branch at the given start point.
	CreateBranchFrom(name, startPoint string) error
	// CheckoutBranch switches the repository to the branch.
	CheckoutBranch(name string) error
	// DeleteBranch force-deletes the branch.
	DeleteBranch(name string) error

	// WorktreeAddNewBranch creates a worktree at path on a new branch
	// started from the given ref.
	WorktreeAddNewBranch(path, branch, startPoint string) error
	// WorktreeRemove removes the worktree at path, discarding changes.
	WorktreeRemove(path string) error
	// WorktreeListPorcelain returns `git worktree list --porcelain` output.
	WorktreeListPorcelain() (string, error)
	// WorktreePrune drops references to worktrees missing on disk.
	WorktreePrune() error

	// MergeNoFFMessage merges branch into the current branch with a
	// merge commit and the given message.
	MergeNoFFMessage(branch, message string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// ConflictedFiles lists paths with unmerged changes.
	ConflictedFiles() ([]string, error)

	// HasChanges returns true if the worktree has uncommitted changes.
	HasChanges() (bool, error)
	// AddAll stages every change.
	AddAll() error
	// Commit records a commit with the given message.
	Commit(message string) error
	// Push pushes the branch to origin.
	Push(branch string) error
}
