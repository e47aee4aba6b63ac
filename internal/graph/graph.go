// Package graph builds and validates the task dependency graph and
// partitions it into parallel execution waves.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// InvalidReferenceError indicates a dependency that names no sibling node.
type InvalidReferenceError struct {
	NodeID     string
	MissingRef string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.NodeID, e.MissingRef)
}

// CycleError indicates a circular dependency. Nodes lists at least the
// members of one detected cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Nodes, " -> "))
}

// MultipleSinkError indicates more than one node has zero dependents.
type MultipleSinkError struct {
	Sinks []string
}

func (e *MultipleSinkError) Error() string {
	return fmt.Sprintf("workflow must converge on a single final task, found %d: %s",
		len(e.Sinks), strings.Join(e.Sinks, ", "))
}

// DisconnectedNodeError indicates a node not reachable from any entry node,
// or from which the sink cannot be reached.
type DisconnectedNodeError struct {
	NodeID string
	Reason string
}

func (e *DisconnectedNodeError) Error() string {
	return fmt.Sprintf("task %s is disconnected: %s", e.NodeID, e.Reason)
}

// InvariantViolationError indicates wave computation stalled on a graph that
// passed validation. It signals a validator defect, not a workflow problem.
type InvariantViolationError struct {
	Remaining []string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("wave computation stalled with %d unplaced tasks (%s): graph passed validation with an undetected cycle",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// Graph is a directed dependency graph over task nodes.
// Edges point from a node to the nodes it depends on.
type Graph struct {
	nodes map[string]*models.TaskNode
	edges map[string][]string
}

// Build constructs a graph from the workflow's task set.
// It returns one InvalidReferenceError per dependency that names an
// unknown node; the graph is still usable for inspection on error.
func Build(tasks map[string]*models.TaskNode) (*Graph, []error) {
	g := &Graph{
		nodes: make(map[string]*models.TaskNode, len(tasks)),
		edges: make(map[string][]string, len(tasks)),
	}

	for id, task := range tasks {
		g.nodes[id] = task
		g.edges[id] = nil
	}

	var errs []error
	for id, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, ok := g.nodes[depID]; !ok {
				errs = append(errs, &InvalidReferenceError{NodeID: id, MissingRef: depID})
				continue
			}
			g.edges[id] = append(g.edges[id], depID)
		}
	}

	return g, errs
}

// Size returns the number of nodes in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Dependencies returns the IDs the given node depends on.
func (g *Graph) Dependencies(id string) []string {
	return g.edges[id]
}

// Dependents returns the IDs of nodes that depend on the given node.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for nodeID, deps := range g.edges {
		for _, depID := range deps {
			if depID == id {
				out = append(out, nodeID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// sortedIDs returns node IDs in deterministic order.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CycleNodes detects a cycle via depth-first search with three-color
// marking. It returns the members of one detected cycle, or nil if the
// graph is acyclic.
func (g *Graph) CycleNodes() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case gray:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i, sid := range stack {
					if sid == depID {
						cycle = append(cycle, stack[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.sortedIDs() {
		if colors[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// Sinks returns the IDs of nodes with zero dependents, sorted.
func (g *Graph) Sinks() []string {
	dependentCount := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		dependentCount[id] = 0
	}
	for _, deps := range g.edges {
		for _, depID := range deps {
			dependentCount[depID]++
		}
	}

	var sinks []string
	for id, count := range dependentCount {
		if count == 0 {
			sinks = append(sinks, id)
		}
	}
	sort.Strings(sinks)
	return sinks
}

// Entries returns the IDs of nodes with zero dependencies, sorted.
func (g *Graph) Entries() []string {
	var entries []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			entries = append(entries, id)
		}
	}
	sort.Strings(entries)
	return entries
}

// Validate checks the structural invariants: acyclic, exactly one sink,
// every node reachable from an entry node, and the sink reachable from
// every node. It returns every violation found, or nil when valid.
func (g *Graph) Validate() []error {
	if len(g.nodes) == 0 {
		return nil
	}

	var errs []error

	if cycle := g.CycleNodes(); cycle != nil {
		errs = append(errs, &CycleError{Nodes: cycle})
		// Sink and reachability checks are meaningless on a cyclic graph.
		return errs
	}

	sinks := g.Sinks()
	if len(sinks) > 1 {
		errs = append(errs, &MultipleSinkError{Sinks: sinks})
	}

	// Forward reachability from entry nodes, following dependent edges.
	reachable := make(map[string]bool, len(g.nodes))
	queue := g.Entries()
	for _, id := range queue {
		reachable[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(id) {
			if !reachable[dep] {
				reachable[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	for _, id := range g.sortedIDs() {
		if !reachable[id] {
			errs = append(errs, &DisconnectedNodeError{
				NodeID: id,
				Reason: "not reachable from any task without dependencies",
			})
		}
	}

	// Every node must reach the sink. Walking dependency edges backwards
	// from the sink covers exactly the nodes that can reach it.
	if len(sinks) == 1 {
		reachesSink := map[string]bool{sinks[0]: true}
		queue = []string{sinks[0]}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, depID := range g.edges[id] {
				if !reachesSink[depID] {
					reachesSink[depID] = true
					queue = append(queue, depID)
				}
			}
		}
		for _, id := range g.sortedIDs() {
			if !reachesSink[id] {
				errs = append(errs, &DisconnectedNodeError{
					NodeID: id,
					Reason: fmt.Sprintf("cannot reach final task %s", sinks[0]),
				})
			}
		}
	}

	return errs
}
