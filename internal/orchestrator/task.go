package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/justinDeu/Founder-Mode-sub000/internal/backend"
	"github.com/justinDeu/Founder-Mode-sub000/internal/runstate"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/internal/verify"
	"github.com/justinDeu/Founder-Mode-sub000/internal/worktree"
	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// taskResult carries one task's outcome into the wave's merge phase.
type taskResult struct {
	id        string
	workspace *worktree.Workspace
	verify    *verify.Result
	err       error
}

// runTask executes one task through the verification loop. Execution
// failures transition the agent to failed here; success leaves the
// agent running until the wave's merge phase settles its final state.
func (o *Orchestrator) runTask(ctx context.Context, id string) *taskResult {
	task := o.workflow.Tasks[id]
	r := &taskResult{id: id}

	running := models.AgentRunning
	if _, err := o.store.UpdateAgent(o.handle, id, status.AgentUpdate{Status: &running}); err != nil {
		r.err = fmt.Errorf("task %s: mark running: %w", id, err)
		return r
	}

	fail := func(err error) *taskResult {
		r.err = err
		o.markFailed(r, err)
		return r
	}

	prompt, err := os.ReadFile(task.PromptPath)
	if err != nil {
		return fail(fmt.Errorf("task %s: read prompt: %w", id, err))
	}

	spec, err := backend.Resolve(task.Backend)
	if err != nil {
		return fail(fmt.Errorf("task %s: %w", id, err))
	}

	workDir := o.repoPath
	if task.Isolated {
		ws, err := o.worktrees.Create(id, o.workflow.Branch)
		if err != nil {
			return fail(err)
		}
		r.workspace = ws
		o.mu.Lock()
		o.workspaces[id] = ws
		o.mu.Unlock()
		workDir = ws.Path
		o.logger.Log("task %s: workspace %s", id, ws.Path)
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.Timeouts.Task > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeouts.Task)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stopWatch := o.watchTask(taskCtx, cancel, id)
	defer stopWatch()

	engine := &verify.Engine{
		TaskID:        id,
		LogDir:        o.handle.Dir,
		MaxIterations: o.cfg.Defaults.MaxIterations,
		TwoStage:      task.TwoStage,
		Dispatch:      o.dispatcher(id, spec, workDir),
	}

	o.registerMonitor(id, engine)

	res, runErr := engine.Run(taskCtx, string(prompt))
	r.verify = res
	if runErr != nil {
		// Distinguish a killed backend from a genuinely failed one: a
		// superseding run or an interrupt ends the agent cancelled, not
		// failed.
		if current, cerr := o.tracker.IsCurrent(o.runID); cerr == nil && !current {
			o.logger.Log("task %s: ended by superseding run", id)
			o.markCancelled(r)
			r.err = ErrSuperseded
			return r
		}
		if ctx.Err() != nil {
			o.markCancelled(r)
			r.err = ctx.Err()
			return r
		}
		return fail(fmt.Errorf("task %s: %w", id, runErr))
	}

	o.logger.Log("task %s: verified in %d iteration(s)", id, res.Iterations)
	return r
}

// dispatcher builds the verify engine's dispatch function for one
// backend spec and working directory. The backend's PID is recorded on
// the agent while it runs, and JSON-wrapped output is unwrapped before
// the engine scans it.
func (o *Orchestrator) dispatcher(id string, spec backend.Spec, workDir string) verify.DispatchFunc {
	return func(ctx context.Context, prompt, logPath string) (string, int, error) {
		argv, stdin := spec.BuildCommand(prompt)
		output, exitCode, err := o.runner.Run(ctx, Invocation{
			Argv:    argv,
			Stdin:   stdin,
			Dir:     workDir,
			Env:     flattenEnv(spec.Env),
			LogPath: logPath,
			OnStart: func(pid int) {
				if _, uerr := o.store.UpdateAgent(o.handle, id, status.AgentUpdate{PID: &pid}); uerr != nil {
					o.logger.Log("record pid for task %s: %v", id, uerr)
				}
			},
		})
		return backend.ResultText(output), exitCode, err
	}
}

// watchTask starts the background watcher for one running task: it
// emits stall advisories at the configured checkpoints and cancels the
// task when a newer run takes over the workspace. The returned stop
// function ends the watcher.
func (o *Orchestrator) watchTask(ctx context.Context, cancel context.CancelFunc, id string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		checkpoints := append([]time.Duration(nil), o.cfg.Timeouts.StallCheckpoints...)
		sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i] < checkpoints[j] })

		start := time.Now()
		next := 0
		ticker := time.NewTicker(o.cfg.Defaults.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(start)
				for next < len(checkpoints) && elapsed >= checkpoints[next] {
					o.notify("Task %s still running after %s", id, checkpoints[next])
					o.logger.Log("task %s: stall checkpoint at %s", id, checkpoints[next])
					next++
				}

				current, err := o.tracker.IsCurrent(o.runID)
				if err == nil && !current {
					o.logger.Log("task %s: run superseded, cancelling", id)
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// registerMonitor records the task's aggregate log in the run record so
// external tooling can find live output.
func (o *Orchestrator) registerMonitor(id string, engine *verify.Engine) {
	if engine.Stamp.IsZero() {
		engine.Stamp = time.Now()
	}
	logFile := fmt.Sprintf("%s/%s-%s.log", o.handle.Dir, id, engine.Stamp.Format("20060102-150405"))
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.tracker.RegisterMonitor(o.runID, runstate.Monitor{TaskID: id, LogFile: logFile})
	if err != nil {
		o.logger.Log("register monitor for %s: %v", id, err)
	}
}

// flattenEnv converts an override map into KEY=VALUE pairs in sorted
// order.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
