package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file> [workflow-name]",
	Short: "Validate a workflow without running it",
	Long: `Parse and validate a workflow document: schema, prompt file
resolution, and graph invariants (no cycles, exactly one sink, every
node reachable). On success the planned wave schedule is printed.

Examples:
  founder-mode validate workflow.yaml
  founder-mode validate workflow.yaml release`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := workflow.Load(args[0])
	if err != nil {
		return err
	}
	name, err := selectWorkflow(doc, args)
	if err != nil {
		return err
	}

	validated, err := workflow.Validate(doc, name, workflow.FileResolver(filepath.Dir(doc.Path)))
	if err != nil {
		return err
	}

	fmt.Printf("Workflow %q is valid: %d tasks in %d waves\n",
		name, len(validated.Workflow.Tasks), len(validated.Waves))
	for i, wave := range validated.Waves {
		fmt.Printf("  wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}
	return nil
}
