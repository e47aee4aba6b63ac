package verify

import "fmt"

// Stage names reported in StagesCompleted.
const (
	StageSpec    = "spec"
	StageQuality = "quality"
)

// State is a verification state machine state.
type State string

const (
	// StateSpecPending awaits the spec-stage success marker.
	StateSpecPending State = "spec_pending"
	// StateQualityPending awaits the quality-stage success marker.
	// Only reachable in two-stage mode, after the spec stage completes.
	StateQualityPending State = "quality_pending"
	// StateDone means every enabled stage completed.
	StateDone State = "done"
	// StateFailed means the iteration budget ran out without success.
	StateFailed State = "failed"
)

// ExhaustedError reports a verification loop that used its full budget
// without reaching done.
type ExhaustedError struct {
	TaskID     string
	Iterations int
	LastReason string
}

func (e *ExhaustedError) Error() string {
	if e.LastReason != "" {
		return fmt.Sprintf("task %s: verification not complete after %d iterations (last reason: %s)",
			e.TaskID, e.Iterations, e.LastReason)
	}
	return fmt.Sprintf("task %s: verification not complete after %d iterations", e.TaskID, e.Iterations)
}

// Machine is the bounded verification state machine for one task.
// Observe is called once per dispatched iteration with the full output;
// the machine tracks stage progress and the iteration budget.
type Machine struct {
	state           State
	twoStage        bool
	maxIterations   int
	iterations      int
	stagesCompleted []string
	lastRetryReason string
}

// NewMachine creates a machine in StateSpecPending.
func NewMachine(twoStage bool, maxIterations int) *Machine {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &Machine{
		state:         StateSpecPending,
		twoStage:      twoStage,
		maxIterations: maxIterations,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Iterations returns how many iterations have been observed.
func (m *Machine) Iterations() int { return m.iterations }

// StagesCompleted returns the ordered list of completed stage names.
func (m *Machine) StagesCompleted() []string { return m.stagesCompleted }

// RetryReason returns the reason attached to the last retry request.
func (m *Machine) RetryReason() string { return m.lastRetryReason }

// Pending returns true while another iteration should be dispatched.
func (m *Machine) Pending() bool {
	return m.state == StateSpecPending || m.state == StateQualityPending
}

// BudgetRemaining returns true while the iteration budget allows another
// dispatch.
func (m *Machine) BudgetRemaining() bool {
	return m.iterations < m.maxIterations
}

// Exhaust fails a still-pending machine whose budget is spent. Used when
// the spec stage consumed the final iteration and the quality stage never
// got to run.
func (m *Machine) Exhaust() {
	if m.Pending() {
		if m.lastRetryReason == "" {
			m.lastRetryReason = "iteration budget exhausted"
		}
		m.state = StateFailed
	}
}

// Observe consumes one iteration's output and advances the machine.
// An output carrying both stage markers completes both stages at once.
// Without a success marker the machine retries until the budget is spent,
// then fails carrying the last retry reason.
func (m *Machine) Observe(output string) {
	if !m.Pending() {
		return
	}

	m.iterations++
	s := scanOutput(output)
	if s.retry {
		m.lastRetryReason = s.retryReason
	}

	switch m.state {
	case StateSpecPending:
		if !s.specDone {
			m.retryOrFail()
			return
		}
		m.stagesCompleted = append(m.stagesCompleted, StageSpec)
		if !m.twoStage {
			m.state = StateDone
			return
		}
		if s.qualityDone {
			m.stagesCompleted = append(m.stagesCompleted, StageQuality)
			m.state = StateDone
			return
		}
		m.state = StateQualityPending

	case StateQualityPending:
		if s.qualityDone {
			m.stagesCompleted = append(m.stagesCompleted, StageQuality)
			m.state = StateDone
			return
		}
		m.retryOrFail()
	}
}

// retryOrFail fails the machine once the iteration budget is spent.
func (m *Machine) retryOrFail() {
	if m.iterations >= m.maxIterations {
		if m.lastRetryReason == "" {
			m.lastRetryReason = "no verification marker found"
		}
		m.state = StateFailed
	}
}
