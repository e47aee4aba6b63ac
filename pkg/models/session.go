package models

import "time"

// SchemaVersion is the session status document schema version.
const SchemaVersion = "1.0"

// SessionStatus represents the overall state of an orchestration run.
type SessionStatus string

const (
	// SessionRunning indicates the session has non-terminal agents.
	SessionRunning SessionStatus = "running"
	// SessionComplete indicates every agent completed or was cancelled.
	SessionComplete SessionStatus = "complete"
	// SessionFailed indicates at least one agent failed.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled indicates the session was cancelled as a whole.
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal returns true once the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionComplete || s == SessionFailed || s == SessionCancelled
}

// Summary holds counts of agents by status.
type Summary struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Summarize partitions agents by status into counts.
func Summarize(agents []*AgentRecord) Summary {
	s := Summary{Total: len(agents)}
	for _, a := range agents {
		switch a.Status {
		case AgentQueued:
			s.Queued++
		case AgentRunning:
			s.Running++
		case AgentComplete:
			s.Complete++
		case AgentFailed:
			s.Failed++
		case AgentCancelled:
			s.Cancelled++
		}
	}
	return s
}

// WaveStatus records one wave's membership and progress.
type WaveStatus struct {
	Wave   int      `json:"wave"`
	Status string   `json:"status"`
	Agents []string `json:"agents"`
}

// Session is the live status record for one orchestration run.
// It is mutated only through the status store's locked write path and
// becomes immutable once Status leaves running.
type Session struct {
	SchemaVersion string         `json:"schema_version"`
	SessionID     string         `json:"session_id"`
	Source        string         `json:"source"`
	SourceFile    string         `json:"source_file"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	Status        SessionStatus  `json:"status"`
	Agents        []*AgentRecord `json:"agents"`
	Summary       Summary        `json:"summary"`
	Waves         []*WaveStatus  `json:"waves"`
}

// Agent returns the record for the given task ID, or nil.
func (s *Session) Agent(id string) *AgentRecord {
	for _, a := range s.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// AllTerminal returns true when every agent is in a terminal state.
func (s *Session) AllTerminal() bool {
	for _, a := range s.Agents {
		if !a.Status.Terminal() {
			return false
		}
	}
	return true
}
