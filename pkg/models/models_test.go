package models

import "testing"

func TestBackendValid(t *testing.T) {
	for _, b := range Backends {
		if !b.Valid() {
			t.Errorf("backend %q reported invalid", b)
		}
	}
	if Backend("gpt-99").Valid() {
		t.Error("unknown backend reported valid")
	}
}

func TestAgentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AgentStatus
		ok       bool
	}{
		{AgentQueued, AgentRunning, true},
		{AgentQueued, AgentCancelled, true},
		{AgentQueued, AgentComplete, false},
		{AgentQueued, AgentFailed, false},
		{AgentRunning, AgentComplete, true},
		{AgentRunning, AgentFailed, true},
		{AgentRunning, AgentCancelled, true},
		{AgentRunning, AgentQueued, false},
		{AgentComplete, AgentRunning, false},
		{AgentComplete, AgentCancelled, false},
		{AgentFailed, AgentRunning, false},
		{AgentCancelled, AgentRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestAgentStatusTerminal(t *testing.T) {
	for _, s := range []AgentStatus{AgentComplete, AgentFailed, AgentCancelled} {
		if !s.Terminal() {
			t.Errorf("%s not terminal", s)
		}
	}
	for _, s := range []AgentStatus{AgentQueued, AgentRunning} {
		if s.Terminal() {
			t.Errorf("%s reported terminal", s)
		}
	}
}

func TestSummarize(t *testing.T) {
	agents := []*AgentRecord{
		{ID: "a", Status: AgentComplete},
		{ID: "b", Status: AgentComplete},
		{ID: "c", Status: AgentRunning},
		{ID: "d", Status: AgentFailed},
		{ID: "e", Status: AgentQueued},
		{ID: "f", Status: AgentCancelled},
	}
	s := Summarize(agents)
	want := Summary{Total: 6, Queued: 1, Running: 1, Complete: 2, Failed: 1, Cancelled: 1}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
}

func TestWorkflowTaskIDsSorted(t *testing.T) {
	wf := &Workflow{Tasks: map[string]*TaskNode{
		"zeta": {ID: "zeta"}, "alpha": {ID: "alpha"}, "mid": {ID: "mid"},
	}}
	ids := wf.TaskIDs()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("TaskIDs = %v, want %v", ids, want)
		}
	}
}

func TestSessionAllTerminal(t *testing.T) {
	s := &Session{Agents: []*AgentRecord{
		{ID: "a", Status: AgentComplete},
		{ID: "b", Status: AgentRunning},
	}}
	if s.AllTerminal() {
		t.Error("AllTerminal true with a running agent")
	}
	s.Agents[1].Status = AgentCancelled
	if !s.AllTerminal() {
		t.Error("AllTerminal false with all agents terminal")
	}
	if s.Agent("a") == nil || s.Agent("nope") != nil {
		t.Error("Agent lookup broken")
	}
}
