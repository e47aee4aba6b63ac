package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/config"
	"github.com/justinDeu/Founder-Mode-sub000/internal/git"
	"github.com/justinDeu/Founder-Mode-sub000/internal/orchestrator"
	"github.com/justinDeu/Founder-Mode-sub000/internal/runstate"
	"github.com/justinDeu/Founder-Mode-sub000/internal/state"
	"github.com/justinDeu/Founder-Mode-sub000/internal/status"
	"github.com/justinDeu/Founder-Mode-sub000/internal/workflow"
	"github.com/justinDeu/Founder-Mode-sub000/internal/worktree"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run <workflow-file> [workflow-name]",
	Short: "Execute a workflow",
	Long: `Validate and execute one workflow from a workflow document.

The workflow name is optional when the document defines exactly one
workflow. Progress is written to .founder-mode/status; watch it live
with 'founder-mode status --watch'.

Examples:
  founder-mode run workflow.yaml
  founder-mode run workflow.yaml release
  founder-mode run workflow.yaml --config ./ci-config.yaml`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Config file to use instead of the default search path")
}

func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}

// selectWorkflow picks the workflow name from args, or the sole entry.
func selectWorkflow(doc *workflow.Document, args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	if len(doc.Workflows) == 1 {
		for name := range doc.Workflows {
			return name, nil
		}
	}
	names := make([]string, 0, len(doc.Workflows))
	for name := range doc.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", fmt.Errorf("document defines %d workflows; name one of %v", len(names), names)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

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

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	repoPath, err := findGitRoot(cwd)
	if err != nil {
		return err
	}

	mgr, err := worktree.NewManager(cfg.Worktrees.BaseDir, repoPath)
	if err != nil {
		return err
	}

	index, err := state.OpenWorkspace(repoPath)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Migrate(); err != nil {
		return err
	}

	logger := orchestrator.NewDebugLoggerForRepo(repoPath)
	defer logger.Close()

	orch, err := orchestrator.New(orchestrator.Options{
		Workflow:   validated.Workflow,
		Waves:      validated.Waves,
		SourceFile: doc.Path,
		RepoPath:   repoPath,
		Config:     cfg,
		Store:      status.New(repoPath),
		Tracker:    runstate.New(repoPath),
		Index:      index,
		Worktrees:  mgr,
		Git:        git.NewRunner(repoPath),
		Logger:     logger,
		Notify: func(format string, args ...interface{}) {
			fmt.Printf(format+"\n", args...)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running workflow %q (%d tasks, %d waves)\n",
		name, len(validated.Workflow.Tasks), len(validated.Waves))

	if err := orch.Run(ctx); err != nil {
		fmt.Printf("Session %s ended: %v\n", orch.SessionID(), err)
		return err
	}
	fmt.Printf("Session %s complete\n", orch.SessionID())
	return nil
}
