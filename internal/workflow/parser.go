// Package workflow loads workflow documents and validates them into
// executable dependency graphs. Validation is all-or-nothing: either the
// whole document passes every check or the full issue list is returned
// and nothing is scheduled.
package workflow

import (
	"fmt"
	"os"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

// Document is the raw, decoded workflow file before validation.
type Document struct {
	// Path is where the document was loaded from, used to resolve
	// relative prompt paths.
	Path string `yaml:"-"`

	Workflows map[string]*WorkflowDoc `yaml:"workflows"`
}

// WorkflowDoc is one named workflow entry in the document.
type WorkflowDoc struct {
	Base       string                `yaml:"base"`
	Branch     string                `yaml:"branch"`
	OnComplete *OnCompleteDoc        `yaml:"on_complete"`
	Prompts    map[string]*PromptDoc `yaml:"prompts"`
}

// OnCompleteDoc holds the raw completion actions.
type OnCompleteDoc struct {
	CreatePR       bool   `yaml:"create_pr"`
	MergeTo        string `yaml:"merge_to"`
	DeleteWorktree bool   `yaml:"delete_worktree"`
}

// PromptDoc is one task entry in a workflow's prompts map.
type PromptDoc struct {
	Path     string   `yaml:"path"`
	After    []string `yaml:"after"`
	Model    string   `yaml:"model"`
	Isolated *bool    `yaml:"isolated"`
	TwoStage bool     `yaml:"two_stage"`
}

// Known keys per mapping level. Unknown keys are schema errors with a
// best-effort suggestion.
var (
	topLevelKeys   = []string{"workflows"}
	workflowKeys   = []string{"base", "branch", "on_complete", "prompts"}
	onCompleteKeys = []string{"create_pr", "merge_to", "delete_worktree"}
	promptKeys     = []string{"path", "after", "model", "isolated", "two_stage"}
)

// Load reads and parses a workflow document from disk.
// Schema-level issues (unknown keys, wrong node kinds) are collected and
// returned together inside a ValidationErrors.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse decodes a workflow document and rejects unknown keys.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ValidationErrors{Errs: []error{
			&SchemaError{Field: "", Reason: fmt.Sprintf("invalid YAML: %v", err)},
		}}
	}

	var errs []error
	if len(root.Content) > 0 {
		errs = checkKeys(root.Content[0], nil)
	}

	var doc Document
	if err := root.Decode(&doc); err != nil {
		errs = append(errs, &SchemaError{Field: "", Reason: fmt.Sprintf("invalid document structure: %v", err)})
	}

	if len(errs) > 0 {
		return nil, &ValidationErrors{Errs: errs}
	}
	return &doc, nil
}

// checkKeys walks the document's mapping nodes and reports keys the
// schema does not define. path carries the mapping's location for error
// messages ("workflows.main.prompts.setup.pathh").
func checkKeys(node *yaml.Node, path []string) []error {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	var errs []error
	switch len(path) {
	case 0:
		errs = append(errs, rejectUnknown(node, path, topLevelKeys)...)
	case 2: // workflows.<name>
		errs = append(errs, rejectUnknown(node, path, workflowKeys)...)
	case 3:
		switch path[2] {
		case "on_complete":
			errs = append(errs, rejectUnknown(node, path, onCompleteKeys)...)
		}
	case 4: // workflows.<name>.prompts.<id>
		if path[2] == "prompts" {
			errs = append(errs, rejectUnknown(node, path, promptKeys)...)
		}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		errs = append(errs, checkKeys(node.Content[i+1], append(path, key))...)
	}
	return errs
}

// rejectUnknown reports each key of the mapping node not in allowed.
func rejectUnknown(node *yaml.Node, path []string, allowed []string) []error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}

	var errs []error
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if allowedSet[key] {
			continue
		}
		errs = append(errs, &UnknownFieldError{
			Field:      joinPath(append(path, key)),
			DidYouMean: suggest(key, allowed),
		})
	}
	return errs
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// suggest returns the closest allowed key, or "" when nothing is close.
func suggest(key string, allowed []string) string {
	matches := fuzzy.Find(key, allowed)
	if len(matches) > 0 {
		return matches[0].Str
	}
	// Fuzzy matching is subsequence-based; also try the reverse direction
	// so truncated keys ("pat" for "path") still suggest.
	for _, candidate := range allowed {
		if m := fuzzy.Find(candidate, []string{key}); len(m) > 0 {
			return candidate
		}
	}
	return ""
}
