package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justinDeu/Founder-Mode-sub000/internal/config"
	"github.com/justinDeu/Founder-Mode-sub000/internal/git"
	"github.com/justinDeu/Founder-Mode-sub000/internal/runstate"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/internal/worktree"
	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

const specDone = "<verification>SPEC_COMPLETE</verification>"

// fakeGit records git operations and can simulate merge conflicts.
type fakeGit struct {
	mu            sync.Mutex
	calls         []string
	conflictOnce  bool
	conflictPaths []string
}

func (g *fakeGit) record(format string, args ...interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
}

func (g *fakeGit) recorded(prefix string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGit) CurrentBranch() (string, error)  { return "main", nil }
func (g *fakeGit) BranchExists(string) (bool, error) {
	return false, nil
}
func (g *fakeGit) CreateBranchFrom(name, start string) error {
	g.record("branch %s %s", name, start)
	return nil
}
func (g *fakeGit) CheckoutBranch(name string) error {
	g.record("checkout %s", name)
	return nil
}
func (g *fakeGit) DeleteBranch(name string) error {
	g.record("delete-branch %s", name)
	return nil
}
func (g *fakeGit) WorktreeAddNewBranch(path, branch, start string) error {
	g.record("worktree-add %s %s", branch, start)
	return nil
}
func (g *fakeGit) WorktreeRemove(path string) error {
	g.record("worktree-remove %s", path)
	return nil
}
func (g *fakeGit) WorktreeListPorcelain() (string, error) { return "", nil }
func (g *fakeGit) WorktreePrune() error                   { return nil }
func (g *fakeGit) MergeNoFFMessage(branch, message string) error {
	g.mu.Lock()
	conflict := g.conflictOnce
	g.conflictOnce = false
	g.mu.Unlock()
	g.record("merge %s", branch)
	if conflict {
		return fmt.Errorf("merge failed")
	}
	return nil
}
func (g *fakeGit) MergeAbort() error {
	g.record("merge-abort")
	return nil
}
func (g *fakeGit) ConflictedFiles() ([]string, error) { return g.conflictPaths, nil }
func (g *fakeGit) HasChanges() (bool, error)          { return false, nil }
func (g *fakeGit) AddAll() error                      { return nil }
func (g *fakeGit) Commit(string) error                { return nil }
func (g *fakeGit) Push(branch string) error {
	g.record("push %s", branch)
	return nil
}

// fakeRunner answers invocations from a script keyed by argv[0], or a
// custom respond function.
type fakeRunner struct {
	mu          sync.Mutex
	invocations []Invocation
	respond     func(inv Invocation) (string, int, error)
}

func (r *fakeRunner) Run(ctx context.Context, inv Invocation) (string, int, error) {
	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	respond := r.respond
	r.mu.Unlock()
	if respond != nil {
		return respond(inv)
	}
	return specDone, 0, nil
}

func (r *fakeRunner) recorded() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.invocations...)
}

// promptOf extracts the prompt from an invocation regardless of the
// backend's stdin mode.
func promptOf(inv Invocation) string {
	if inv.Stdin != "" {
		return inv.Stdin
	}
	if len(inv.Argv) > 0 {
		return inv.Argv[len(inv.Argv)-1]
	}
	return ""
}

type fixture struct {
	orch    *Orchestrator
	store   *status.Store
	tracker *runstate.Tracker
	git     *fakeGit
	runner  *fakeRunner
}

func writePrompt(t *testing.T, dir, id string) string {
	t.Helper()
	path := filepath.Join(dir, id+".md")
	if err := os.WriteFile(path, []byte("do the "+id+" work"), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	return path
}

func newFixture(t *testing.T, wf *models.Workflow, waves [][]string, fg *fakeGit, fr *fakeRunner) *fixture {
	t.Helper()
	root := t.TempDir()

	mgr, err := worktree.NewManagerWithRunner(filepath.Join(root, "wt"), root, fg, func(string) git.Runner { return fg })
	if err != nil {
		t.Fatalf("worktree manager: %v", err)
	}

	cfg := config.Default()
	cfg.Defaults.PollInterval = 10 * time.Millisecond
	cfg.Timeouts.StallCheckpoints = nil

	store := status.New(root)
	tracker := runstate.New(root)

	orch, err := New(Options{
		Workflow:   wf,
		Waves:      waves,
		SourceFile: "workflow.yaml",
		RepoPath:   root,
		Config:     cfg,
		Store:      store,
		Tracker:    tracker,
		Worktrees:  mgr,
		Git:        fg,
		Runner:     fr,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{orch: orch, store: store, tracker: tracker, git: fg, runner: fr}
}

func twoWaveWorkflow(t *testing.T) (*models.Workflow, [][]string) {
	t.Helper()
	promptDir := t.TempDir()
	return &models.Workflow{
		Name:   "release",
		Base:   "main",
		Branch: "release-work",
		Tasks: map[string]*models.TaskNode{
			"api": {
				ID: "api", Name: "Api", PromptPath: writePrompt(t, promptDir, "api"),
				Backend: models.BackendClaude, Isolated: true, Wave: 1,
			},
			"docs": {
				ID: "docs", Name: "Docs", PromptPath: writePrompt(t, promptDir, "docs"),
				DependsOn: []string{"api"}, Backend: models.BackendClaude, Wave: 2,
			},
		},
	}, [][]string{{"api"}, {"docs"}}
}

func loadSession(t *testing.T, f *fixture) *models.Session {
	t.Helper()
	h, err := f.store.Open(f.orch.SessionID())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	session, err := status.Load(h)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return session
}

func TestRunCompletesWorkflow(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	f := newFixture(t, wf, waves, &fakeGit{}, &fakeRunner{})

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	session := loadSession(t, f)
	if session.Status != models.SessionComplete {
		t.Errorf("session status = %q, want complete", session.Status)
	}
	for _, a := range session.Agents {
		if a.Status != models.AgentComplete {
			t.Errorf("agent %s = %q, want complete", a.ID, a.Status)
		}
	}
	if got := session.Agent("api").Model; got != models.BackendClaude {
		t.Errorf("api model = %q, want %q", got, models.BackendClaude)
	}

	// The isolated task merged into the working branch exactly once,
	// and its workspace was destroyed after the clean merge.
	merges := f.git.recorded("merge ")
	if len(merges) != 1 || !strings.Contains(merges[0], "fm-task-api-") {
		t.Errorf("merges = %v, want one merge of the api workspace", merges)
	}
	if removals := f.git.recorded("worktree-remove"); len(removals) != 1 {
		t.Errorf("worktree removals = %v, want one after the clean merge", removals)
	}

	// The non-isolated task ran in the main repo, not a workspace.
	var docsDir string
	for _, inv := range f.runner.recorded() {
		if strings.Contains(promptOf(inv), "docs work") {
			docsDir = inv.Dir
		}
	}
	if strings.Contains(docsDir, "fm-task-") {
		t.Errorf("docs ran in a workspace: %s", docsDir)
	}
}

func TestRunHaltsOnTaskFailure(t *testing.T) {
	promptDir := t.TempDir()
	wf := &models.Workflow{
		Name: "w", Base: "main", Branch: "work",
		Tasks: map[string]*models.TaskNode{
			"alpha": {ID: "alpha", Name: "Alpha", PromptPath: writePrompt(t, promptDir, "alpha"),
				Backend: models.BackendClaude, Isolated: true, Wave: 1},
			"beta": {ID: "beta", Name: "Beta", PromptPath: writePrompt(t, promptDir, "beta"),
				Backend: models.BackendClaude, Isolated: true, Wave: 1},
			"gamma": {ID: "gamma", Name: "Gamma", PromptPath: writePrompt(t, promptDir, "gamma"),
				DependsOn: []string{"alpha", "beta"}, Backend: models.BackendClaude, Wave: 2},
		},
	}
	waves := [][]string{{"alpha", "beta"}, {"gamma"}}

	fr := &fakeRunner{respond: func(inv Invocation) (string, int, error) {
		if strings.Contains(promptOf(inv), "alpha work") {
			return "boom", 1, nil
		}
		return specDone, 0, nil
	}}
	f := newFixture(t, wf, waves, &fakeGit{}, fr)

	err := f.orch.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite task failure")
	}

	session := loadSession(t, f)
	if session.Status != models.SessionFailed {
		t.Errorf("session status = %q, want failed", session.Status)
	}
	if got := session.Agent("alpha").Status; got != models.AgentFailed {
		t.Errorf("alpha = %q, want failed", got)
	}
	// The in-flight sibling finished, but its merge was skipped.
	if got := session.Agent("beta").Status; got != models.AgentComplete {
		t.Errorf("beta = %q, want complete", got)
	}
	if merges := f.git.recorded("merge "); len(merges) != 0 {
		t.Errorf("merges = %v, want none past the failure", merges)
	}
	// Unmerged workspaces are preserved for inspection.
	if removals := f.git.recorded("worktree-remove"); len(removals) != 0 {
		t.Errorf("worktree removals = %v, want none", removals)
	}
	// The downstream wave never ran.
	if got := session.Agent("gamma").Status; got != models.AgentCancelled {
		t.Errorf("gamma = %q, want cancelled", got)
	}
}

func TestRunPausesOnMergeConflict(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	fg := &fakeGit{conflictOnce: true, conflictPaths: []string{"internal/api/server.go"}}
	f := newFixture(t, wf, waves, fg, &fakeRunner{})

	err := f.orch.Run(context.Background())
	var conflict *MergeConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Run error = %v, want MergeConflictError", err)
	}
	if conflict.TaskID != "api" || len(conflict.ConflictPaths) != 1 {
		t.Errorf("conflict = %+v", conflict)
	}

	// The in-progress merge was aborted so the branch stays clean, and
	// the workspace was preserved for manual resolution.
	if aborts := f.git.recorded("merge-abort"); len(aborts) != 1 {
		t.Errorf("merge aborts = %v, want one", aborts)
	}
	if removals := f.git.recorded("worktree-remove"); len(removals) != 0 {
		t.Errorf("worktree removals = %v, want none", removals)
	}

	// A conflict pauses the run: the session stays open, the
	// conflicting agent keeps running with the conflict recorded, and
	// the downstream wave is never dispatched, staying queued.
	session := loadSession(t, f)
	if session.Status != models.SessionRunning {
		t.Errorf("session status = %q, want running", session.Status)
	}
	api := session.Agent("api")
	if api.Status != models.AgentRunning {
		t.Errorf("api = %q, want running", api.Status)
	}
	if !strings.Contains(api.Error, "internal/api/server.go") {
		t.Errorf("api error = %q, want the conflict paths recorded", api.Error)
	}
	if got := session.Agent("docs").Status; got != models.AgentQueued {
		t.Errorf("docs = %q, want queued", got)
	}
}

func TestRunStopsWhenSuperseded(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	var f *fixture
	fr := &fakeRunner{respond: func(inv Invocation) (string, int, error) {
		// A second run takes over the workspace while wave 1 executes.
		if strings.Contains(promptOf(inv), "api work") {
			if _, err := f.tracker.StartRun(nil); err != nil {
				return "", -1, err
			}
		}
		return specDone, 0, nil
	}}
	f = newFixture(t, wf, waves, &fakeGit{}, fr)

	err := f.orch.Run(context.Background())
	if err != ErrSuperseded {
		t.Fatalf("Run error = %v, want ErrSuperseded", err)
	}

	session := loadSession(t, f)
	if session.Status != models.SessionCancelled {
		t.Errorf("session status = %q, want cancelled", session.Status)
	}
	if got := session.Agent("docs").Status; got != models.AgentCancelled {
		t.Errorf("docs = %q, want cancelled", got)
	}
}

func TestRunCancelsSupersededTask(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	var f *fixture
	fr := &fakeRunner{respond: func(inv Invocation) (string, int, error) {
		// A second run takes over and the backend dies mid-task, as it
		// would when the watcher kills the process.
		if strings.Contains(promptOf(inv), "api work") {
			if _, err := f.tracker.StartRun(nil); err != nil {
				return "", -1, err
			}
			return "", -1, errors.New("signal: killed")
		}
		return specDone, 0, nil
	}}
	f = newFixture(t, wf, waves, &fakeGit{}, fr)

	err := f.orch.Run(context.Background())
	if err != ErrSuperseded {
		t.Fatalf("Run error = %v, want ErrSuperseded", err)
	}

	session := loadSession(t, f)
	if got := session.Agent("api").Status; got != models.AgentCancelled {
		t.Errorf("api = %q, want cancelled", got)
	}
	if session.Status != models.SessionCancelled {
		t.Errorf("session status = %q, want cancelled", session.Status)
	}
}

func TestRunRecordsBackendPID(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	var f *fixture
	var livePID int
	fr := &fakeRunner{respond: func(inv Invocation) (string, int, error) {
		if inv.OnStart != nil {
			inv.OnStart(4321)
		}
		if strings.Contains(promptOf(inv), "api work") {
			if h, err := f.store.Open(f.orch.SessionID()); err == nil {
				if session, err := status.Load(h); err == nil {
					if pid := session.Agent("api").PID; pid != nil {
						livePID = *pid
					}
				}
			}
		}
		return specDone, 0, nil
	}}
	f = newFixture(t, wf, waves, &fakeGit{}, fr)

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if livePID != 4321 {
		t.Errorf("pid while running = %d, want 4321", livePID)
	}
	// The pid is cleared once the agent is terminal.
	if pid := loadSession(t, f).Agent("api").PID; pid != nil {
		t.Errorf("pid after completion = %d, want cleared", *pid)
	}
}

func TestRunUnwrapsJSONBackendOutput(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	fr := &fakeRunner{respond: func(inv Invocation) (string, int, error) {
		// The claude CLI envelope: the marker only appears inside the
		// result field.
		return `{"type":"result","result":"done\n` + specDone + `","cost_usd":0.01}`, 0, nil
	}}
	f := newFixture(t, wf, waves, &fakeGit{}, fr)

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := loadSession(t, f).Status; got != models.SessionComplete {
		t.Errorf("session status = %q, want complete", got)
	}
}

func TestRunCompletionActions(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	wf.OnComplete = &models.OnComplete{CreatePR: true, DeleteWorktree: true}
	f := newFixture(t, wf, waves, &fakeGit{}, &fakeRunner{})

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if pushes := f.git.recorded("push release-work"); len(pushes) != 1 {
		t.Errorf("pushes = %v, want one", pushes)
	}
	var sawPR bool
	for _, inv := range f.runner.recorded() {
		if len(inv.Argv) > 2 && inv.Argv[0] == "gh" && inv.Argv[1] == "pr" && inv.Argv[2] == "create" {
			sawPR = true
		}
	}
	if !sawPR {
		t.Error("no gh pr create invocation recorded")
	}
	if removals := f.git.recorded("worktree-remove"); len(removals) != 1 {
		t.Errorf("worktree removals = %v, want one", removals)
	}
}

func TestRunRecordsMonitors(t *testing.T) {
	wf, waves := twoWaveWorkflow(t)
	f := newFixture(t, wf, waves, &fakeGit{}, &fakeRunner{})

	if err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := f.tracker.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(run.Monitors) != 2 {
		t.Fatalf("monitors = %+v, want 2", run.Monitors)
	}
	for _, m := range run.Monitors {
		if m.LogFile == "" {
			t.Errorf("monitor %s has no log file", m.TaskID)
		}
	}
}
