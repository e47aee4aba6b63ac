package models

import "time"

// AgentStatus represents the lifecycle state of one dispatched task.
type AgentStatus string

const (
	// AgentQueued indicates the agent has not started.
	AgentQueued AgentStatus = "queued"
	// AgentRunning indicates the agent's backend process is executing.
	AgentRunning AgentStatus = "running"
	// AgentComplete indicates the agent finished successfully.
	AgentComplete AgentStatus = "complete"
	// AgentFailed indicates the agent finished unsuccessfully.
	AgentFailed AgentStatus = "failed"
	// AgentCancelled indicates the agent was cancelled before finishing.
	AgentCancelled AgentStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentQueued, AgentRunning, AgentComplete, AgentFailed, AgentCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once the status can no longer change.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentComplete, AgentFailed, AgentCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal transition.
// Legal: queued→running, running→complete, running→failed,
// queued→cancelled, running→cancelled. Terminal states never transition.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	switch s {
	case AgentQueued:
		return next == AgentRunning || next == AgentCancelled
	case AgentRunning:
		return next == AgentComplete || next == AgentFailed || next == AgentCancelled
	default:
		return false
	}
}

// AgentRecord is the per-task entry in a session status document.
type AgentRecord struct {
	// ID is the task node ID this agent executes.
	ID string `json:"id"`
	// Name is the human-readable task title.
	Name string `json:"name"`
	// PromptPath is the prompt file the agent runs.
	PromptPath string `json:"prompt_path"`
	// Status is the agent's lifecycle state.
	Status AgentStatus `json:"status"`
	// Wave is the execution wave this agent belongs to.
	Wave int `json:"wave"`
	// StartedAt is when the agent transitioned to running.
	StartedAt *time.Time `json:"started_at"`
	// CompletedAt is when the agent reached a terminal state.
	CompletedAt *time.Time `json:"completed_at"`
	// DurationSeconds is the elapsed run time once terminal.
	DurationSeconds *float64 `json:"duration_seconds"`
	// ExitCode is the backend process exit code, if it ran.
	ExitCode *int `json:"exit_code"`
	// PID is the backend process ID while running.
	PID *int `json:"pid"`
	// LogFile is the aggregate log file for this agent.
	LogFile string `json:"log_file"`
	// Model is the backend the agent dispatches to.
	Model Backend `json:"model"`
	// Error holds the failure reason once failed.
	Error string `json:"error,omitempty"`
}
