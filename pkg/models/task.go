// Package models defines the shared data model for founder-mode:
// workflows, task nodes, agent status records, and session documents.
package models

import "sort"

// Backend identifies the CLI used to execute a task's prompt.
type Backend string

const (
	// BackendClaude runs prompts through the claude CLI.
	BackendClaude Backend = "claude"
	// BackendCodex runs prompts through the codex CLI.
	BackendCodex Backend = "codex"
	// BackendGemini runs prompts through the gemini CLI.
	BackendGemini Backend = "gemini"
	// BackendZai runs prompts through the zai CLI.
	BackendZai Backend = "zai"
	// BackendOpenCode runs prompts through the opencode CLI.
	BackendOpenCode Backend = "opencode"
	// BackendOpenCodeZai runs opencode with the zai/glm-4.7 model.
	BackendOpenCodeZai Backend = "opencode-zai"
	// BackendOpenCodeCodex runs opencode with the openai/gpt-5.2-codex model.
	BackendOpenCodeCodex Backend = "opencode-codex"
	// BackendClaudeZai runs the claude CLI against the Z.AI endpoint.
	BackendClaudeZai Backend = "claude-zai"
)

// Backends lists every supported backend.
var Backends = []Backend{
	BackendClaude, BackendCodex, BackendGemini, BackendZai,
	BackendOpenCode, BackendOpenCodeZai, BackendOpenCodeCodex, BackendClaudeZai,
}

// Valid returns true if the backend is a known value.
func (b Backend) Valid() bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}

// TaskNode is one schedulable unit of work in a workflow.
type TaskNode struct {
	// ID is the node's unique identifier within its workflow.
	ID string `json:"id"`
	// Name is a human-readable title derived from the prompt filename.
	Name string `json:"name"`
	// PromptPath is the resolved path to the prompt file.
	PromptPath string `json:"prompt_path"`
	// DependsOn lists node IDs that must complete before this node runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Backend selects the execution CLI for this node.
	Backend Backend `json:"backend"`
	// Isolated indicates the node runs in its own worktree.
	// Non-isolated nodes run in the base worktree and skip the merge step.
	Isolated bool `json:"isolated"`
	// TwoStage enables the quality verification stage after the spec stage.
	TwoStage bool `json:"two_stage,omitempty"`
	// Wave is the 1-based execution wave, assigned by the scheduler.
	Wave int `json:"wave,omitempty"`
}

// OnComplete describes actions taken after the final wave merges clean.
// CreatePR and MergeTo are mutually exclusive.
type OnComplete struct {
	CreatePR       bool   `json:"create_pr,omitempty"`
	MergeTo        string `json:"merge_to,omitempty"`
	DeleteWorktree bool   `json:"delete_worktree,omitempty"`
}

// Workflow is a validated, immutable workflow definition.
type Workflow struct {
	// Name is the workflow's key in the workflow document.
	Name string `json:"name"`
	// Base is the ref the working branch is created from.
	Base string `json:"base"`
	// Branch is the working branch all task results merge into.
	Branch string `json:"branch"`
	// OnComplete holds optional completion actions.
	OnComplete *OnComplete `json:"on_complete,omitempty"`
	// Tasks maps node ID to its definition.
	Tasks map[string]*TaskNode `json:"tasks"`
}

// TaskIDs returns all node IDs in sorted order.
func (w *Workflow) TaskIDs() []string {
	ids := make([]string, 0, len(w.Tasks))
	for id := range w.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
