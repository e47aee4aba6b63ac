package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justinDeu/Founder-Mode-sub000/internal/config"
	"github.com/justinDeu/Founder-Mode-sub000/internal/git"
	"github.com/justinDeu/Founder-Mode-sub000/internal/runstate"
	"github.com/justinDeu/Founder-Mode-sub000/internal/state"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/internal/worktree"
	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// Options configures an Orchestrator.
type Options struct {
	// Workflow is the validated workflow to execute.
	Workflow *models.Workflow
	// Waves is the wave schedule over the workflow's task IDs.
	Waves [][]string
	// SourceFile is the workflow document path, recorded in the session.
	SourceFile string
	// RepoPath is the repository the workflow operates on.
	RepoPath string
	// Config supplies iteration budgets, poll intervals, and timeouts.
	Config *config.Config
	// Store persists session status documents.
	Store *status.Store
	// Tracker owns the workspace's run record.
	Tracker *runstate.Tracker
	// Index is the optional session index database.
	Index *state.DB
	// Worktrees manages isolated task workspaces.
	Worktrees *worktree.Manager
	// Git is a runner scoped to RepoPath.
	Git git.Runner
	// Runner executes backend invocations. Defaults to ExecRunner.
	Runner CommandRunner
	// Logger receives debug output. Defaults to a no-op logger.
	Logger *DebugLogger
	// Notify receives user-facing progress notices. Optional.
	Notify func(format string, args ...interface{})
}

// Orchestrator executes one workflow run to completion.
type Orchestrator struct {
	workflow  *models.Workflow
	waves     [][]string
	source    string
	repoPath  string
	cfg       *config.Config
	store     *status.Store
	tracker   *runstate.Tracker
	index     *state.DB
	worktrees *worktree.Manager
	git       git.Runner
	runner    CommandRunner
	logger    *DebugLogger
	notify    func(format string, args ...interface{})

	runID  string
	handle status.Handle
	// mu guards workspaces and run-record writes from concurrent tasks.
	mu sync.Mutex
	// workspaces tracks live isolated workspaces by task ID, for merges
	// and completion actions.
	workspaces map[string]*worktree.Workspace
}

// New validates options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("orchestrator requires a workflow")
	}
	if len(opts.Waves) == 0 {
		return nil, fmt.Errorf("orchestrator requires a wave schedule")
	}
	if opts.Store == nil || opts.Tracker == nil {
		return nil, fmt.Errorf("orchestrator requires a status store and run tracker")
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger()
	}
	if opts.Notify == nil {
		opts.Notify = func(string, ...interface{}) {}
	}

	return &Orchestrator{
		workflow:   opts.Workflow,
		waves:      opts.Waves,
		source:     opts.SourceFile,
		repoPath:   opts.RepoPath,
		cfg:        opts.Config,
		store:      opts.Store,
		tracker:    opts.Tracker,
		index:      opts.Index,
		worktrees:  opts.Worktrees,
		git:        opts.Git,
		runner:     opts.Runner,
		logger:     opts.Logger,
		notify:     opts.Notify,
		workspaces: make(map[string]*worktree.Workspace),
	}, nil
}

// SessionID returns the session created by Run. Empty before Run.
func (o *Orchestrator) SessionID() string {
	return o.handle.ID
}

// Run executes the workflow wave by wave. Within a wave all tasks run
// concurrently; the wave's merges happen sequentially in task-ID order
// after every task has finished. A failure halts scheduling: in-flight
// siblings are allowed to finish, but no merge past the failure happens
// and later waves are cancelled. A merge conflict instead pauses the
// run: the session stays running with the conflict recorded, later
// waves stay queued, and the workspace is preserved for manual
// resolution.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.prepareBranch(); err != nil {
		return err
	}

	run, err := o.tracker.StartRun(o.workflow.TaskIDs())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	o.runID = run.RunID

	if err := o.createSession(); err != nil {
		return err
	}
	o.logger.Log("run %s: session %s, %d waves", o.runID, o.handle.ID, len(o.waves))
	defer o.recordOutcome()

	var haltErr error
	for wi, wave := range o.waves {
		if haltErr != nil {
			o.cancelWave(wave)
			continue
		}

		if err := ctx.Err(); err != nil {
			o.store.CancelSession(o.handle)
			return err
		}
		current, err := o.tracker.IsCurrent(o.runID)
		if err == nil && !current {
			o.logger.Log("run %s superseded before wave %d", o.runID, wi+1)
			o.store.CancelSession(o.handle)
			return ErrSuperseded
		}

		o.logger.Log("wave %d: dispatching %v", wi+1, wave)
		o.notify("Wave %d/%d: %d task(s)", wi+1, len(o.waves), len(wave))

		results := make([]*taskResult, len(wave))
		var g errgroup.Group
		for i, id := range wave {
			i, id := i, id
			g.Go(func() error {
				results[i] = o.runTask(ctx, id)
				return nil
			})
		}
		g.Wait()

		haltErr = o.mergeWave(results)
		if haltErr != nil {
			var conflict *MergeConflictError
			switch {
			case errors.As(haltErr, &conflict):
				// Pause, not abort: the conflicting agent and every
				// later wave stay where they are until the operator
				// resolves the workspace.
				return haltErr
			case errors.Is(haltErr, ErrSuperseded):
				o.store.CancelSession(o.handle)
				return ErrSuperseded
			case ctx.Err() != nil:
				o.store.CancelSession(o.handle)
				return haltErr
			}
		}
	}

	if haltErr != nil {
		return haltErr
	}

	if err := o.runCompletionActions(ctx); err != nil {
		return err
	}
	o.notify("Workflow %s complete", o.workflow.Name)
	return nil
}

// prepareBranch ensures the workflow's working branch exists and is
// checked out in the main repository.
func (o *Orchestrator) prepareBranch() error {
	if o.git == nil {
		return nil
	}
	exists, err := o.git.BranchExists(o.workflow.Branch)
	if err != nil {
		return fmt.Errorf("check branch %s: %w", o.workflow.Branch, err)
	}
	if !exists {
		if err := o.git.CreateBranchFrom(o.workflow.Branch, o.workflow.Base); err != nil {
			return fmt.Errorf("create branch %s from %s: %w", o.workflow.Branch, o.workflow.Base, err)
		}
	}
	if err := o.git.CheckoutBranch(o.workflow.Branch); err != nil {
		return fmt.Errorf("checkout %s: %w", o.workflow.Branch, err)
	}
	return nil
}

// createSession builds the agent records and opens the status document.
func (o *Orchestrator) createSession() error {
	var agents []*models.AgentRecord
	var waveStatuses []*models.WaveStatus

	for wi, wave := range o.waves {
		ws := &models.WaveStatus{Wave: wi + 1, Status: "queued", Agents: wave}
		waveStatuses = append(waveStatuses, ws)
		for _, id := range wave {
			task := o.workflow.Tasks[id]
			agents = append(agents, &models.AgentRecord{
				ID:         id,
				Name:       task.Name,
				PromptPath: task.PromptPath,
				Status:     models.AgentQueued,
				Wave:       wi + 1,
				Model:      task.Backend,
			})
		}
	}

	handle, err := o.store.CreateSession(o.workflow.Name, o.source, agents, waveStatuses)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	o.handle = handle

	if o.index != nil {
		entry := &state.IndexEntry{
			ID:         handle.ID,
			Workflow:   o.workflow.Name,
			SourceFile: o.source,
			StartedAt:  time.Now().UTC(),
			Status:     models.SessionRunning,
			TotalTasks: len(agents),
			StatusDir:  handle.Dir,
		}
		if err := o.index.RecordSession(entry); err != nil {
			o.logger.Log("index session %s: %v", handle.ID, err)
		}
	}
	return nil
}

// recordOutcome copies the session's final state into the index.
func (o *Orchestrator) recordOutcome() {
	if o.index == nil {
		return
	}
	session, err := status.Load(o.handle)
	if err != nil {
		return
	}
	// A paused session (merge conflict) has no final state to record.
	if !session.Status.Terminal() {
		return
	}
	completed := time.Now().UTC()
	if session.CompletedAt != nil {
		completed = *session.CompletedAt
	}
	if err := o.index.FinishSession(o.handle.ID, session.Status, completed,
		session.Summary.Complete, session.Summary.Failed); err != nil {
		o.logger.Log("finish index entry %s: %v", o.handle.ID, err)
	}
}

// mergeWave reconciles a finished wave in task-ID order. It returns the
// error that should halt the run, or nil when the wave merged clean.
func (o *Orchestrator) mergeWave(results []*taskResult) error {
	var haltErr error

	for _, r := range results {
		if haltErr != nil {
			// Work past the failure completed but is not merged; the
			// agent still finished its own job.
			if r.err == nil {
				o.markComplete(r)
				if r.workspace != nil {
					o.notify("Task %s finished but its merge was skipped; workspace kept at %s", r.id, r.workspace.Path)
				}
			}
			continue
		}
		if r.err != nil {
			o.logger.Log("task %s failed: %v", r.id, r.err)
			haltErr = r.err
			continue
		}
		if r.workspace == nil {
			o.markComplete(r)
			continue
		}

		mr, err := o.worktrees.Merge(r.workspace, o.workflow.Branch)
		if err != nil {
			o.markFailed(r, err)
			haltErr = err
			continue
		}
		if !mr.Clean {
			conflict := &MergeConflictError{
				TaskID:        r.id,
				Workspace:     r.workspace.Path,
				ConflictPaths: mr.ConflictPaths,
			}
			// The agent stays running and the session stays open: a
			// conflict pauses the run pending manual resolution.
			o.markConflicted(r, conflict)
			o.notify("Merge conflict for task %s; resolve manually in %s", r.id, r.workspace.Path)
			haltErr = conflict
			continue
		}
		o.logger.Log("task %s merged into %s", r.id, o.workflow.Branch)
		o.markComplete(r)
		o.releaseWorkspace(r.id)
	}
	return haltErr
}

// releaseWorkspace destroys a task's workspace after its clean merge.
// Unmerged workspaces are left in place.
func (o *Orchestrator) releaseWorkspace(id string) {
	o.mu.Lock()
	ws := o.workspaces[id]
	delete(o.workspaces, id)
	o.mu.Unlock()
	if ws == nil {
		return
	}
	if err := o.worktrees.Destroy(ws); err != nil {
		o.logger.Log("destroy workspace for %s: %v", id, err)
		return
	}
	o.logger.Log("destroyed workspace for %s", id)
}

// cancelWave transitions every still-queued agent in the wave to
// cancelled.
func (o *Orchestrator) cancelWave(wave []string) {
	cancelled := models.AgentCancelled
	for _, id := range wave {
		if _, err := o.store.UpdateAgent(o.handle, id, status.AgentUpdate{Status: &cancelled}); err != nil {
			o.logger.Log("cancel task %s: %v", id, err)
		}
	}
}

func (o *Orchestrator) markComplete(r *taskResult) {
	complete := models.AgentComplete
	update := status.AgentUpdate{Status: &complete}
	if r.verify != nil {
		update.ExitCode = &r.verify.ExitCode
		update.LogFile = r.verify.LogFile
	}
	if _, err := o.store.UpdateAgent(o.handle, r.id, update); err != nil {
		o.logger.Log("mark task %s complete: %v", r.id, err)
	}
}

// markConflicted records a merge conflict on the agent without ending
// it: the agent keeps running until the operator resolves or cancels.
func (o *Orchestrator) markConflicted(r *taskResult, conflict *MergeConflictError) {
	if _, err := o.store.UpdateAgent(o.handle, r.id, status.AgentUpdate{Error: conflict.Error()}); err != nil {
		o.logger.Log("record conflict for task %s: %v", r.id, err)
	}
}

func (o *Orchestrator) markCancelled(r *taskResult) {
	cancelled := models.AgentCancelled
	update := status.AgentUpdate{Status: &cancelled}
	if r.verify != nil {
		update.LogFile = r.verify.LogFile
	}
	if _, err := o.store.UpdateAgent(o.handle, r.id, update); err != nil {
		o.logger.Log("mark task %s cancelled: %v", r.id, err)
	}
}

func (o *Orchestrator) markFailed(r *taskResult, cause error) {
	failed := models.AgentFailed
	update := status.AgentUpdate{Status: &failed, Error: cause.Error()}
	if r.verify != nil {
		update.ExitCode = &r.verify.ExitCode
		update.LogFile = r.verify.LogFile
	}
	if _, err := o.store.UpdateAgent(o.handle, r.id, update); err != nil {
		o.logger.Log("mark task %s failed: %v", r.id, err)
	}
}
