// Package workflow defines the workflow data model: immutable
// definitions describing a DAG of task specs, executions instantiated
// from those definitions, per-task execution records, and the pure
// scheduler that computes which tasks are eligible to run.
//
// A definition is validated once at creation time (unique task IDs, no
// dangling edges, no cycles) and never at run time; the scheduler and
// engine assume acyclicity. Executions and tasks move through explicit
// state machines, and every legal transition is enumerated here so the
// engine can reject duplicate or out-of-order operations with
// accord.ErrInvalidTransition instead of corrupting state.
package workflow
