package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DispatchFunc runs one backend iteration. It receives the prompt for
// this iteration and the per-iteration log path, and returns the output
// to scan for markers along with the process exit code.
type DispatchFunc func(ctx context.Context, prompt, logPath string) (output string, exitCode int, err error)

// Engine drives the verification loop for a single task: dispatch,
// scan markers, retry with history, escalate stages.
type Engine struct {
	// TaskID names the task, used in log file names and errors.
	TaskID string
	// LogDir is the directory iteration logs are written to.
	LogDir string
	// MaxIterations bounds total dispatches across both stages.
	MaxIterations int
	// TwoStage enables the quality stage after the spec stage.
	TwoStage bool
	// Dispatch runs one backend iteration.
	Dispatch DispatchFunc
	// Stamp correlates all log files for one run; captured once at the
	// first dispatch when zero.
	Stamp time.Time
}

// Result is the outcome of a verification loop.
type Result struct {
	// Success is true when every enabled stage completed.
	Success bool
	// StagesCompleted lists completed stages in order.
	StagesCompleted []string
	// Iterations is the number of dispatches performed.
	Iterations int
	// RetryReason is the last retry reason on failure.
	RetryReason string
	// ExitCode is the last backend exit code.
	ExitCode int
	// LogFile is the aggregate log referencing every iteration.
	LogFile string
}

// Run executes the bounded loop. A non-zero backend exit ends the loop
// immediately with an error; marker exhaustion returns an ExhaustedError
// alongside the partial result.
func (e *Engine) Run(ctx context.Context, originalPrompt string) (*Result, error) {
	if e.Stamp.IsZero() {
		e.Stamp = time.Now()
	}
	stamp := e.Stamp.Format("20060102-150405")

	m := NewMachine(e.TwoStage, e.MaxIterations)
	aggregate := filepath.Join(e.LogDir, fmt.Sprintf("%s-%s.log", e.TaskID, stamp))
	result := &Result{LogFile: aggregate}

	prompt := originalPrompt
	var lastOutput string

	for m.Pending() && m.BudgetRemaining() {
		if err := ctx.Err(); err != nil {
			result.Iterations = m.Iterations()
			return result, err
		}

		iter := m.Iterations() + 1
		iterLog := filepath.Join(e.LogDir, fmt.Sprintf("%s-%s.iter%d.log", e.TaskID, stamp, iter))

		output, exitCode, err := e.Dispatch(ctx, prompt, iterLog)
		e.appendAggregate(aggregate, iter, string(m.State()), iterLog, output)
		result.ExitCode = exitCode
		lastOutput = output

		if err != nil {
			result.Iterations = m.Iterations() + 1
			return result, fmt.Errorf("task %s iteration %d: %w", e.TaskID, iter, err)
		}
		if exitCode != 0 {
			result.Iterations = m.Iterations() + 1
			return result, fmt.Errorf("task %s iteration %d: backend exited with code %d", e.TaskID, iter, exitCode)
		}

		prev := m.State()
		m.Observe(output)

		switch {
		case m.State() == StateQualityPending && prev == StateSpecPending:
			prompt = qualityPrompt(originalPrompt, lastOutput)
		case m.Pending():
			prompt = retryPrompt(originalPrompt, lastOutput, m.RetryReason())
		}
	}

	if m.Pending() {
		m.Exhaust()
	}

	result.Iterations = m.Iterations()
	result.StagesCompleted = m.StagesCompleted()
	result.RetryReason = m.RetryReason()
	result.Success = m.State() == StateDone

	if !result.Success {
		return result, &ExhaustedError{
			TaskID:     e.TaskID,
			Iterations: m.Iterations(),
			LastReason: m.RetryReason(),
		}
	}
	return result, nil
}

// appendAggregate records one iteration in the task's aggregate log.
func (e *Engine) appendAggregate(path string, iter int, stage, iterLog, output string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "\n--- Iteration %d (%s) at %s ---\n--- Log: %s ---\n%s\n",
		iter, stage, time.Now().Format(time.RFC3339), iterLog, output)
}

// retryPrompt rebuilds the prompt with the previous attempt and the
// retry reason attached.
func retryPrompt(original, history, reason string) string {
	return fmt.Sprintf(`%s

--- Previous Attempt ---
%s

--- Retry Reason ---
%s

Please address the issue and try again.
`, original, history, reason)
}

// qualityPrompt asks for the second-stage review after the spec stage
// completed.
func qualityPrompt(original, history string) string {
	return fmt.Sprintf(`%s

--- Previous Attempt ---
%s

The functional requirements are met. Now review the work for quality:
naming, structure, error handling, and tests. Make any improvements
needed, then output <verification>%s</verification> when satisfied, or
<verification>%s reason</verification> to iterate again.
`, original, history, MarkerQualityComplete, retryPrefix)
}
