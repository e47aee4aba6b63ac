package workflow

import (
	"fmt"
	"strings"
)

// SchemaError indicates a malformed or missing field in the workflow document.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UnknownFieldError indicates a key the schema does not define.
type UnknownFieldError struct {
	Field      string
	DidYouMean string
}

func (e *UnknownFieldError) Error() string {
	if e.DidYouMean != "" {
		return fmt.Sprintf("unknown field %q (did you mean %q?)", e.Field, e.DidYouMean)
	}
	return fmt.Sprintf("unknown field %q", e.Field)
}

// MutualExclusionError indicates two fields that may not both be set.
type MutualExclusionError struct {
	Fields []string
}

func (e *MutualExclusionError) Error() string {
	return fmt.Sprintf("fields %s are mutually exclusive", strings.Join(e.Fields, " and "))
}

// MissingResourceError indicates a prompt locator that resolves to nothing.
type MissingResourceError struct {
	NodeID  string
	Locator string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("task %s: prompt file not found: %s", e.NodeID, e.Locator)
}

// ValidationErrors aggregates every issue found in one validation pass.
// Validation never partially applies: any entry here means nothing runs.
type ValidationErrors struct {
	Errs []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("workflow validation failed: %v", e.Errs[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "workflow validation failed with %d issues:", len(e.Errs))
	for _, err := range e.Errs {
		fmt.Fprintf(&b, "\n  - %v", err)
	}
	return b.String()
}

// Unwrap exposes the individual issues to errors.Is/As.
func (e *ValidationErrors) Unwrap() []error {
	return e.Errs
}
