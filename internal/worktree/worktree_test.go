package worktree

import (
	"strings"
	"testing"

	"github.com/justinDeu/Founder-Mode-sub000/internal/git"
)

// fakeGit records calls and plays back scripted results.
type fakeGit struct {
	calls         []string
	mergeErr      error
	conflicts     []string
	hasChanges    bool
	porcelain     string
	removeErr     error
	currentBranch string
}

var _ git.Runner = (*fakeGit)(nil)

func (f *fakeGit) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeGit) CurrentBranch() (string, error)         { return f.currentBranch, nil }
func (f *fakeGit) BranchExists(string) (bool, error)      { return false, nil }
func (f *fakeGit) CreateBranchFrom(n, s string) error     { f.record("branch " + n + " " + s); return nil }
func (f *fakeGit) CheckoutBranch(n string) error          { f.record("checkout " + n); return nil }
func (f *fakeGit) DeleteBranch(n string) error            { f.record("delete-branch " + n); return nil }
func (f *fakeGit) WorktreeRemove(p string) error          { f.record("wt-remove " + p); return f.removeErr }
func (f *fakeGit) WorktreeListPorcelain() (string, error) { return f.porcelain, nil }
func (f *fakeGit) WorktreePrune() error                   { f.record("wt-prune"); return nil }
func (f *fakeGit) MergeAbort() error                      { f.record("merge-abort"); return nil }
func (f *fakeGit) ConflictedFiles() ([]string, error)     { return f.conflicts, nil }
func (f *fakeGit) HasChanges() (bool, error)              { return f.hasChanges, nil }
func (f *fakeGit) AddAll() error                          { f.record("add-all"); return nil }
func (f *fakeGit) Commit(m string) error                  { f.record("commit"); return nil }
func (f *fakeGit) Push(b string) error                    { f.record("push " + b); return nil }

func (f *fakeGit) WorktreeAddNewBranch(path, branch, start string) error {
	f.record("wt-add " + branch + " from " + start)
	return nil
}

func (f *fakeGit) MergeNoFFMessage(branch, message string) error {
	f.record("merge " + branch)
	return f.mergeErr
}

func newTestManager(t *testing.T, repo *fakeGit, ws *fakeGit) *Manager {
	t.Helper()
	m, err := NewManagerWithRunner(t.TempDir(), "/repo", repo, func(string) git.Runner {
		return ws
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateUsesBaseRef(t *testing.T) {
	repo := &fakeGit{}
	m := newTestManager(t, repo, &fakeGit{})

	ws, err := m.Create("api", "main")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(ws.Branch, "fm-task-api-") {
		t.Errorf("unexpected branch name %q", ws.Branch)
	}
	if ws.TaskID != "api" {
		t.Errorf("expected task id api, got %q", ws.TaskID)
	}

	found := false
	for _, call := range repo.calls {
		if strings.HasPrefix(call, "wt-add fm-task-api-") && strings.HasSuffix(call, "from main") {
			found = true
		}
	}
	if !found {
		t.Errorf("worktree not created from base ref, calls: %v", repo.calls)
	}
}

func TestMergeCleanCommitsDirtyWorkspace(t *testing.T) {
	repo := &fakeGit{}
	wsGit := &fakeGit{hasChanges: true}
	m := newTestManager(t, repo, wsGit)

	ws := &Workspace{Path: "/wt/x", Branch: "fm-task-x-abcd1234", TaskID: "x"}
	result, err := m.Merge(ws, "feature/main-flow")
	if err != nil {
		t.Fatal(err)
	}

	if !result.Clean {
		t.Error("expected clean merge")
	}
	if wsGit.calls[0] != "add-all" || wsGit.calls[1] != "commit" {
		t.Errorf("dirty workspace should be committed first, got %v", wsGit.calls)
	}
	if repo.calls[0] != "checkout feature/main-flow" {
		t.Errorf("merge must happen on the target branch, got %v", repo.calls)
	}
}

func TestMergeConflictPreservesWorkspace(t *testing.T) {
	repo := &fakeGit{
		mergeErr:  errMerge,
		conflicts: []string{"x.txt"},
	}
	m := newTestManager(t, repo, &fakeGit{})

	ws := &Workspace{Path: "/wt/x", Branch: "fm-task-x-abcd1234", TaskID: "x"}
	result, err := m.Merge(ws, "feature/main-flow")
	if err != nil {
		t.Fatal(err)
	}

	if result.Clean {
		t.Fatal("expected conflict result")
	}
	if len(result.ConflictPaths) != 1 || result.ConflictPaths[0] != "x.txt" {
		t.Errorf("expected conflict on x.txt, got %v", result.ConflictPaths)
	}

	for _, call := range repo.calls {
		if strings.HasPrefix(call, "wt-remove") || strings.HasPrefix(call, "delete-branch") {
			t.Errorf("conflicted workspace must be preserved, saw %q", call)
		}
	}

	aborted := false
	for _, call := range repo.calls {
		if call == "merge-abort" {
			aborted = true
		}
	}
	if !aborted {
		t.Error("conflicted merge must be aborted to keep the target clean")
	}
}

func TestMergeFailureWithoutConflictsIsError(t *testing.T) {
	repo := &fakeGit{mergeErr: errMerge}
	m := newTestManager(t, repo, &fakeGit{})

	ws := &Workspace{Path: "/wt/x", Branch: "fm-task-x-abcd1234", TaskID: "x"}
	if _, err := m.Merge(ws, "main"); err == nil {
		t.Fatal("expected error when merge fails without conflicts")
	}
}

func TestCleanupOrphansKeepsActive(t *testing.T) {
	porcelain := strings.Join([]string{
		"worktree /repo",
		"branch refs/heads/main",
		"",
		"worktree /wt/fm-task-a-11112222",
		"branch refs/heads/fm-task-a-11112222",
		"",
		"worktree /wt/fm-task-b-33334444",
		"branch refs/heads/fm-task-b-33334444",
		"",
	}, "\n")
	repo := &fakeGit{porcelain: porcelain}
	m := newTestManager(t, repo, &fakeGit{})

	removed, err := m.CleanupOrphans([]string{"fm-task-a-11112222"})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	for _, call := range repo.calls {
		if strings.Contains(call, "fm-task-a-11112222") && strings.HasPrefix(call, "wt-remove") {
			t.Error("active workspace must not be removed")
		}
	}
}

var errMerge = &mergeError{}

type mergeError struct{}

func (*mergeError) Error() string { return "exit status 1" }
