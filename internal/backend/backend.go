// Package backend maps execution backends to the CLI commands that run
// them. The table is resolved at validation time so unknown backends are
// schema errors, never dispatch-time surprises.
package backend

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// StdinMode selects how the prompt reaches the backend CLI.
type StdinMode string

const (
	// StdinPipe pipes the prompt to the process's standard input.
	StdinPipe StdinMode = "stdin"
	// StdinPositional appends the prompt as the final argument.
	StdinPositional StdinMode = "positional"
)

// Spec is the typed command template for one backend.
type Spec struct {
	// Command is the base argv; the prompt is appended in positional mode.
	Command []string
	// Mode selects stdin piping vs positional prompt.
	Mode StdinMode
	// Env holds environment overrides merged over the parent environment.
	Env map[string]string
	// ExtraArgs are appended after Command before the prompt.
	ExtraArgs []string
}

// table maps each backend to its command template.
var table = map[models.Backend]Spec{
	models.BackendClaude: {
		Command: []string{"claude", "-p"},
		Mode:    StdinPositional,
		ExtraArgs: []string{
			"--dangerously-skip-permissions",
			"--output-format", "json",
		},
	},
	models.BackendCodex: {
		Command: []string{"codex", "exec", "--full-auto", "-"},
		Mode:    StdinPipe,
	},
	models.BackendGemini: {
		Command: []string{"gemini", "-y", "-p"},
		Mode:    StdinPositional,
	},
	models.BackendZai: {
		Command: []string{"zai", "-p"},
		Mode:    StdinPositional,
	},
	models.BackendOpenCode: {
		Command: []string{"opencode", "run"},
		Mode:    StdinPositional,
	},
	models.BackendOpenCodeZai: {
		Command: []string{"opencode", "--model", "zai/glm-4.7", "run"},
		Mode:    StdinPositional,
	},
	models.BackendOpenCodeCodex: {
		Command: []string{"opencode", "--model", "openai/gpt-5.2-codex", "run"},
		Mode:    StdinPositional,
	},
	models.BackendClaudeZai: {
		Command: []string{"claude", "-p"},
		Mode:    StdinPositional,
		Env: map[string]string{
			// ANTHROPIC_AUTH_TOKEN must be present in the caller's environment.
			"ANTHROPIC_BASE_URL": "https://api.z.ai/api/anthropic",
		},
		ExtraArgs: []string{"--dangerously-skip-permissions"},
	},
}

// Resolve returns the command template for the given backend.
func Resolve(b models.Backend) (Spec, error) {
	spec, ok := table[b]
	if !ok {
		return Spec{}, fmt.Errorf("no command configured for backend %q", b)
	}
	return spec, nil
}

// BuildCommand assembles the argv and stdin payload for one dispatch.
// In positional mode the prompt becomes the final argument and stdin is
// empty; in pipe mode the argv is returned as-is and the prompt is the
// stdin payload.
func (s Spec) BuildCommand(prompt string) (argv []string, stdin string) {
	argv = append(append([]string(nil), s.Command...), s.ExtraArgs...)
	if s.Mode == StdinPipe {
		return argv, prompt
	}
	return append(argv, prompt), ""
}

// ResultText extracts the assistant-visible text from backend output.
// The claude CLI in JSON output mode wraps its answer in a {"result": ...}
// object; everything else is passed through unchanged.
func ResultText(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") {
		return output
	}
	if result := gjson.Get(trimmed, "result"); result.Exists() {
		return result.String()
	}
	return output
}
