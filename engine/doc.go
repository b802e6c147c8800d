// Package engine owns the workflow and task lifecycle state machines.
// It drives the scheduler over each execution's DAG, dispatches ready
// tasks to the external executor through the middleware chain, applies
// retry policy with exponential backoff, and records every state
// transition in the trust ledger before returning control to the
// caller.
//
// Concurrency model: single writer per workflow execution. All state
// mutation for one execution happens under that execution's lock, so
// concurrent completion callbacks cannot race; different executions
// progress fully in parallel. Task dispatch itself is asynchronous —
// dispatching returns as soon as the task is RUNNING and handed to the
// executor, and the result arrives later through CompleteTask or
// FailTask.
package engine
