package graph

import "sort"

// Waves partitions the graph into ordered parallel batches by iterative
// peeling: each round takes every unplaced node whose full dependency set
// is already placed. A node therefore lands in the earliest wave its
// prerequisites allow, which maximizes per-wave concurrency.
//
// Must only be called on a validated graph. If a round finds no eligible
// nodes while nodes remain, an undetected cycle slipped past validation
// and an InvariantViolationError is returned.
func (g *Graph) Waves() ([][]string, error) {
	var waves [][]string
	completed := make(map[string]bool, len(g.nodes))
	remaining := make(map[string]bool, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = true
	}

	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			satisfied := true
			for _, depID := range g.edges[id] {
				if !completed[depID] {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			var stuck []string
			for id := range remaining {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &InvariantViolationError{Remaining: stuck}
		}

		sort.Strings(ready)
		waves = append(waves, ready)
		for _, id := range ready {
			completed[id] = true
			delete(remaining, id)
		}
	}

	// Record the 1-based wave number on each node.
	for i, wave := range waves {
		for _, id := range wave {
			g.nodes[id].Wave = i + 1
		}
	}

	return waves, nil
}
