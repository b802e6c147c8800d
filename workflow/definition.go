package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/accord"
	"github.com/xraph/accord/id"
)

// TaskType classifies how a task is dispatched.
type TaskType string

const (
	// TaskTypeAgent delegates to the external agent-invocation
	// collaborator; the returned output becomes the task's output.
	TaskTypeAgent TaskType = "agent"
	// TaskTypeDecision evaluates a branching condition against current
	// workflow data and marks skipped branches.
	TaskTypeDecision TaskType = "decision"
	// TaskTypeHumanApproval suspends the task (and workflow) until an
	// external approval decision arrives.
	TaskTypeHumanApproval TaskType = "human_approval"
	// TaskTypeParallel fans out declared sub-tasks simultaneously and
	// completes only when all sub-tasks complete.
	TaskTypeParallel TaskType = "parallel"
)

// Valid reports whether the task type is one of the known set.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeAgent, TaskTypeDecision, TaskTypeHumanApproval, TaskTypeParallel:
		return true
	}
	return false
}

// TaskSpec declares one task within a workflow definition. SpecID is
// the caller-chosen identifier, unique within the definition; edges
// reference tasks by SpecID.
type TaskSpec struct {
	SpecID     string          `json:"spec_id"`
	Name       string          `json:"name,omitempty"`
	Type       TaskType        `json:"type"`
	Config     json.RawMessage `json:"config,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Timeout    time.Duration   `json:"timeout,omitempty"`
}

// Edge declares a dependency: To may not start until From has
// completed.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Definition is an immutable workflow template. Once created it is
// never edited; new behavior means a new definition. Deactivating a
// definition stops new executions without touching in-flight ones.
type Definition struct {
	accord.Entity

	ID     id.DefinitionID `json:"id"`
	Name   string          `json:"name"`
	Active bool            `json:"active"`
	Tasks  []TaskSpec      `json:"tasks"`
	Edges  []Edge          `json:"edges,omitempty"`
}

// TaskSpec returns the spec with the given SpecID, or nil.
func (d *Definition) TaskSpec(specID string) *TaskSpec {
	for i := range d.Tasks {
		if d.Tasks[i].SpecID == specID {
			return &d.Tasks[i]
		}
	}
	return nil
}

// Validate checks the definition's structure: non-empty name and task
// set, known task types, SpecIDs unique within the definition, every
// edge endpoint resolving to a declared task, and an acyclic edge set.
// All failures wrap accord.ErrInvalidDefinition.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow: definition has no name: %w", accord.ErrInvalidDefinition)
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("workflow: definition %q has no tasks: %w", d.Name, accord.ErrInvalidDefinition)
	}

	seen := make(map[string]bool, len(d.Tasks))
	for _, spec := range d.Tasks {
		if spec.SpecID == "" {
			return fmt.Errorf("workflow: definition %q has a task with no spec_id: %w", d.Name, accord.ErrInvalidDefinition)
		}
		if seen[spec.SpecID] {
			return fmt.Errorf("workflow: duplicate task %q in definition %q: %w", spec.SpecID, d.Name, accord.ErrInvalidDefinition)
		}
		seen[spec.SpecID] = true
		if !spec.Type.Valid() {
			return fmt.Errorf("workflow: task %q has unknown type %q: %w", spec.SpecID, spec.Type, accord.ErrInvalidDefinition)
		}
		if spec.MaxRetries < 0 {
			return fmt.Errorf("workflow: task %q has negative max_retries: %w", spec.SpecID, accord.ErrInvalidDefinition)
		}
	}

	for _, e := range d.Edges {
		if !seen[e.From] {
			return fmt.Errorf("workflow: edge references unknown task %q: %w", e.From, accord.ErrInvalidDefinition)
		}
		if !seen[e.To] {
			return fmt.Errorf("workflow: edge references unknown task %q: %w", e.To, accord.ErrInvalidDefinition)
		}
		if e.From == e.To {
			return fmt.Errorf("workflow: task %q depends on itself: %w", e.From, accord.ErrInvalidDefinition)
		}
	}

	if cycle := findCycle(d.Tasks, d.Edges); len(cycle) > 0 {
		return fmt.Errorf("workflow: definition %q contains a cycle through %v: %w", d.Name, cycle, accord.ErrInvalidDefinition)
	}
	return nil
}

// findCycle runs Kahn's algorithm over the edge set and returns the
// SpecIDs left unprocessed (the cycle participants), or nil when the
// graph is acyclic.
func findCycle(tasks []TaskSpec, edges []Edge) []string {
	indegree := make(map[string]int, len(tasks))
	out := make(map[string][]string, len(tasks))
	for _, spec := range tasks {
		indegree[spec.SpecID] = 0
	}
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		indegree[e.To]++
	}

	var frontier []string
	for specID, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, specID)
		}
	}

	processed := 0
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		processed++
		for _, next := range out[n] {
			indegree[next]--
			if indegree[next] == 0 {
				frontier = append(frontier, next)
			}
		}
	}

	if processed == len(tasks) {
		return nil
	}

	var stuck []string
	for specID, deg := range indegree {
		if deg > 0 {
			stuck = append(stuck, specID)
		}
	}
	sort.Strings(stuck)
	return stuck
}
