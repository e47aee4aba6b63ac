package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSuperseded is returned when a newer run takes over the workspace
// while this run is still executing.
var ErrSuperseded = errors.New("run superseded by a newer run")

// MergeConflictError reports a workspace merge that hit conflicts. The
// workspace is preserved for manual resolution and the target branch is
// left clean.
type MergeConflictError struct {
	TaskID        string
	Workspace     string
	ConflictPaths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict for task %s in %s (workspace preserved at %s)",
		e.TaskID, strings.Join(e.ConflictPaths, ", "), e.Workspace)
}
