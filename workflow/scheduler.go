package workflow

import "sort"

// ReadyTasks computes which tasks are eligible to run given the current
// snapshot. A task is ready iff it is PENDING and every incoming edge's
// source task is COMPLETED; tasks with no incoming edges are ready
// immediately.
//
// The function is pure: it mutates nothing and returns the same result
// for the same snapshot, so the engine can call it repeatedly without
// double-dispatching. Ready tasks come back in topological-layer order
// with ties broken by SpecID ascending, making execution order
// deterministic run to run.
//
// Cycles are rejected at definition creation; the scheduler assumes
// acyclicity.
func ReadyTasks(tasks []*Task, edges []Edge) []*Task {
	status := make(map[string]TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.SpecID] = t.Status
	}

	incoming := make(map[string][]string, len(tasks))
	for _, e := range edges {
		incoming[e.To] = append(incoming[e.To], e.From)
	}

	var ready []*Task
	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		eligible := true
		for _, dep := range incoming[t.SpecID] {
			if status[dep] != TaskCompleted {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, t)
		}
	}

	layer := topoLayers(tasks, edges)
	sort.SliceStable(ready, func(i, j int) bool {
		li, lj := layer[ready[i].SpecID], layer[ready[j].SpecID]
		if li != lj {
			return li < lj
		}
		return ready[i].SpecID < ready[j].SpecID
	})
	return ready
}

// topoLayers assigns each task its depth in the DAG: roots are layer 0,
// and every other task sits one past its deepest dependency. Layers are
// structural, derived from edges alone, so the ordering is stable across
// the whole run.
func topoLayers(tasks []*Task, edges []Edge) map[string]int {
	indegree := make(map[string]int, len(tasks))
	out := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		indegree[t.SpecID] = 0
	}
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		indegree[e.To]++
	}

	layer := make(map[string]int, len(tasks))
	var frontier []string
	for specID, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, specID)
			layer[specID] = 0
		}
	}

	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		for _, next := range out[n] {
			if layer[n]+1 > layer[next] {
				layer[next] = layer[n] + 1
			}
			indegree[next]--
			if indegree[next] == 0 {
				frontier = append(frontier, next)
			}
		}
	}
	return layer
}

// Downstream returns the SpecIDs reachable from the given task by
// following outgoing edges transitively. The engine uses it to cascade
// skips through branches a decision task pruned.
func Downstream(specID string, edges []Edge) []string {
	out := make(map[string][]string)
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
	}

	seen := map[string]bool{}
	var result []string
	frontier := []string{specID}
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		for _, next := range out[n] {
			if !seen[next] {
				seen[next] = true
				result = append(result, next)
				frontier = append(frontier, next)
			}
		}
	}
	sort.Strings(result)
	return result
}
