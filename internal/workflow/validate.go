package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/justinDeu/Founder-Mode-sub000/internal/backend"
	"github.com/justinDeu/Founder-Mode-sub000/internal/graph"
	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// ResolveFunc resolves a prompt locator to an absolute path.
// It returns an error when the locator names no existing resource.
type ResolveFunc func(locator string) (string, error)

// FileResolver resolves locators relative to baseDir against the filesystem.
func FileResolver(baseDir string) ResolveFunc {
	return func(locator string) (string, error) {
		path := locator
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, locator)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", path)
		}
		return filepath.Abs(path)
	}
}

// Validated is the outcome of a successful validation pass.
type Validated struct {
	Workflow *models.Workflow
	Graph    *graph.Graph
	// Waves is the ordered wave partition; Waves[i] lists node IDs of
	// wave i+1 in sorted order.
	Waves [][]string
}

// Validate checks one named workflow from the document and returns its
// validated graph and wave partition. Checks run in order: schema, prompt
// resolution, graph invariants. Every issue found is collected; on any
// issue the returned error is a *ValidationErrors and nothing else is
// returned.
func Validate(doc *Document, name string, resolve ResolveFunc) (*Validated, error) {
	var errs []error

	if len(doc.Workflows) == 0 {
		return nil, &ValidationErrors{Errs: []error{
			&SchemaError{Field: "workflows", Reason: "document defines no workflows"},
		}}
	}

	wfDoc, ok := doc.Workflows[name]
	if !ok {
		names := make([]string, 0, len(doc.Workflows))
		for n := range doc.Workflows {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, &ValidationErrors{Errs: []error{
			&SchemaError{
				Field:  "workflows." + name,
				Reason: fmt.Sprintf("workflow not defined (available: %s)", strings.Join(names, ", ")),
			},
		}}
	}

	prefix := "workflows." + name

	// Schema checks.
	if wfDoc.Base == "" {
		errs = append(errs, &SchemaError{Field: prefix + ".base", Reason: "required field is missing"})
	}
	if wfDoc.Branch == "" {
		errs = append(errs, &SchemaError{Field: prefix + ".branch", Reason: "required field is missing"})
	}
	if len(wfDoc.Prompts) == 0 {
		errs = append(errs, &SchemaError{Field: prefix + ".prompts", Reason: "workflow defines no tasks"})
	}
	if oc := wfDoc.OnComplete; oc != nil && oc.CreatePR && oc.MergeTo != "" {
		errs = append(errs, &MutualExclusionError{Fields: []string{
			prefix + ".on_complete.create_pr",
			prefix + ".on_complete.merge_to",
		}})
	}

	wf := &models.Workflow{
		Name:   name,
		Base:   wfDoc.Base,
		Branch: wfDoc.Branch,
		Tasks:  make(map[string]*models.TaskNode, len(wfDoc.Prompts)),
	}
	if wfDoc.OnComplete != nil {
		wf.OnComplete = &models.OnComplete{
			CreatePR:       wfDoc.OnComplete.CreatePR,
			MergeTo:        wfDoc.OnComplete.MergeTo,
			DeleteWorktree: wfDoc.OnComplete.DeleteWorktree,
		}
	}

	// Per-node schema and resource resolution.
	ids := make([]string, 0, len(wfDoc.Prompts))
	for id := range wfDoc.Prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := wfDoc.Prompts[id]
		field := fmt.Sprintf("%s.prompts.%s", prefix, id)

		if p == nil || p.Path == "" {
			errs = append(errs, &SchemaError{Field: field + ".path", Reason: "required field is missing"})
			continue
		}

		model := models.Backend(p.Model)
		if p.Model == "" {
			model = models.BackendClaude
		}
		if !model.Valid() {
			errs = append(errs, &SchemaError{
				Field:  field + ".model",
				Reason: fmt.Sprintf("unsupported backend %q (supported: %s)", p.Model, backendList()),
			})
			continue
		}
		// Resolve the dispatch command now so an unconfigured backend
		// surfaces here rather than mid-run.
		if _, err := backend.Resolve(model); err != nil {
			errs = append(errs, &SchemaError{Field: field + ".model", Reason: err.Error()})
			continue
		}

		resolved, err := resolve(p.Path)
		if err != nil {
			errs = append(errs, &MissingResourceError{NodeID: id, Locator: p.Path})
			continue
		}

		isolated := true
		if p.Isolated != nil {
			isolated = *p.Isolated
		}

		wf.Tasks[id] = &models.TaskNode{
			ID:         id,
			Name:       titleFromPath(id, resolved),
			PromptPath: resolved,
			DependsOn:  append([]string(nil), p.After...),
			Backend:    model,
			Isolated:   isolated,
			TwoStage:   p.TwoStage,
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationErrors{Errs: errs}
	}

	// Graph checks.
	g, buildErrs := graph.Build(wf.Tasks)
	errs = append(errs, buildErrs...)
	if len(errs) > 0 {
		return nil, &ValidationErrors{Errs: errs}
	}
	if graphErrs := g.Validate(); len(graphErrs) > 0 {
		return nil, &ValidationErrors{Errs: graphErrs}
	}

	waves, err := g.Waves()
	if err != nil {
		// Defensive: an undetected cycle is a validator defect.
		return nil, err
	}

	return &Validated{Workflow: wf, Graph: g, Waves: waves}, nil
}

func backendList() string {
	names := make([]string, len(models.Backends))
	for i, b := range models.Backends {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

// titleFromPath derives a display name from the prompt filename,
// e.g. "003-01-state-management.md" with id "003-01" -> "State Management".
func titleFromPath(id, path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := strings.TrimPrefix(stem, id)
	title = strings.Trim(title, "-")
	if title == "" {
		return id
	}
	words := strings.Split(strings.ReplaceAll(title, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
