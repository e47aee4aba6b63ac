package backend

import (
	"testing"

	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

func TestResolveAllKnownBackends(t *testing.T) {
	for _, b := range models.Backends {
		if _, err := Resolve(b); err != nil {
			t.Errorf("backend %s has no command template: %v", b, err)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	if _, err := Resolve(models.Backend("gpt-2")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildCommandPositional(t *testing.T) {
	spec, err := Resolve(models.BackendGemini)
	if err != nil {
		t.Fatal(err)
	}

	argv, stdin := spec.BuildCommand("do the thing")
	if stdin != "" {
		t.Errorf("positional mode should not use stdin, got %q", stdin)
	}
	if argv[len(argv)-1] != "do the thing" {
		t.Errorf("prompt should be the final argument, got %v", argv)
	}
}

func TestBuildCommandStdin(t *testing.T) {
	spec, err := Resolve(models.BackendCodex)
	if err != nil {
		t.Fatal(err)
	}

	argv, stdin := spec.BuildCommand("do the thing")
	if stdin != "do the thing" {
		t.Errorf("stdin mode should carry the prompt, got %q", stdin)
	}
	for _, arg := range argv {
		if arg == "do the thing" {
			t.Error("stdin mode must not append the prompt to argv")
		}
	}
}

func TestBuildCommandDoesNotMutateTable(t *testing.T) {
	spec, _ := Resolve(models.BackendClaude)
	before := len(spec.Command)
	spec.BuildCommand("p1")
	spec.BuildCommand("p2")

	again, _ := Resolve(models.BackendClaude)
	if len(again.Command) != before {
		t.Errorf("table command mutated: %v", again.Command)
	}
}

func TestResultTextJSON(t *testing.T) {
	out := `{"type":"result","result":"all done\n<verification>SPEC_COMPLETE</verification>","cost_usd":0.02}`
	got := ResultText(out)
	want := "all done\n<verification>SPEC_COMPLETE</verification>"
	if got != want {
		t.Errorf("ResultText = %q, want %q", got, want)
	}
}

func TestResultTextPlain(t *testing.T) {
	out := "plain log output"
	if got := ResultText(out); got != out {
		t.Errorf("plain output should pass through, got %q", got)
	}
}

func TestClaudeZaiEnvOverride(t *testing.T) {
	spec, _ := Resolve(models.BackendClaudeZai)
	if spec.Env["ANTHROPIC_BASE_URL"] == "" {
		t.Error("claude-zai must override ANTHROPIC_BASE_URL")
	}
}
