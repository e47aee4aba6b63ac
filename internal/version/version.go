// Package version exposes the founder-mode release version.
package version

import (
	_ "embed"
	"runtime"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release version with surrounding whitespace trimmed.
func Get() string {
	return strings.TrimSpace(raw)
}

// Detailed returns the version plus the Go runtime it was built with.
func Detailed() string {
	return Get() + " (" + runtime.Version() + ")"
}
