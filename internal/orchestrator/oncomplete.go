package orchestrator

import (
	"context"
	"fmt"
	"sort"
)

// runCompletionActions applies the workflow's on_complete block after
// every wave merged clean.
func (o *Orchestrator) runCompletionActions(ctx context.Context) error {
	oc := o.workflow.OnComplete
	if oc == nil {
		return nil
	}

	if oc.MergeTo != "" {
		if err := o.mergeWorkingBranch(oc.MergeTo); err != nil {
			return err
		}
		o.notify("Merged %s into %s", o.workflow.Branch, oc.MergeTo)
	}

	if oc.CreatePR {
		if err := o.createPullRequest(ctx); err != nil {
			return err
		}
		o.notify("Opened pull request for %s", o.workflow.Branch)
	}

	// Cleanly-merged workspaces are already gone; this sweeps anything
	// left behind (skipped merges on a partial halt).
	if oc.DeleteWorktree {
		o.destroyWorkspaces()
	}
	return nil
}

// mergeWorkingBranch merges the workflow branch into the target branch
// in the main repository.
func (o *Orchestrator) mergeWorkingBranch(target string) error {
	if o.git == nil {
		return fmt.Errorf("merge_to requires a git runner")
	}
	if err := o.git.CheckoutBranch(target); err != nil {
		return fmt.Errorf("checkout %s: %w", target, err)
	}
	msg := fmt.Sprintf("merge workflow %s", o.workflow.Name)
	if err := o.git.MergeNoFFMessage(o.workflow.Branch, msg); err != nil {
		return fmt.Errorf("merge %s into %s: %w", o.workflow.Branch, target, err)
	}
	o.logger.Log("merged %s into %s", o.workflow.Branch, target)
	return nil
}

// createPullRequest pushes the working branch and opens a PR against
// the workflow's base via the gh CLI.
func (o *Orchestrator) createPullRequest(ctx context.Context) error {
	if o.git != nil {
		if err := o.git.Push(o.workflow.Branch); err != nil {
			return fmt.Errorf("push %s: %w", o.workflow.Branch, err)
		}
	}

	argv := []string{
		"gh", "pr", "create",
		"--head", o.workflow.Branch,
		"--base", o.workflow.Base,
		"--title", fmt.Sprintf("Workflow: %s", o.workflow.Name),
		"--body", fmt.Sprintf("Automated run %s of workflow %s.", o.handle.ID, o.workflow.Name),
	}
	output, exitCode, err := o.runner.Run(ctx, Invocation{Argv: argv, Dir: o.repoPath})
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("create pull request: gh exited with code %d: %s", exitCode, output)
	}
	o.logger.Log("pull request created for %s", o.workflow.Branch)
	return nil
}

// destroyWorkspaces removes every workspace still tracked.
func (o *Orchestrator) destroyWorkspaces() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.workspaces))
	for id := range o.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	o.mu.Unlock()

	for _, id := range ids {
		o.mu.Lock()
		ws := o.workspaces[id]
		delete(o.workspaces, id)
		o.mu.Unlock()
		if ws == nil {
			continue
		}
		if err := o.worktrees.Destroy(ws); err != nil {
			o.logger.Log("destroy workspace for %s: %v", id, err)
			continue
		}
		o.logger.Log("destroyed workspace for %s", id)
	}
}
