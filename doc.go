// Package accord provides a composable coordination core for autonomous
// agent workflows. It combines a DAG-based task scheduler and workflow
// lifecycle engine with an append-only, hash-chained trust ledger, so that
// every state transition an execution makes leaves a tamper-evident record.
//
// Accord is designed as a library, not a service. Import it, configure a
// store, register a task executor, and start workflow executions. The
// surrounding surfaces — HTTP APIs, connectors to enterprise systems,
// agent-model invocation, settlement business rules — live outside this
// module and plug in through the collaborator interfaces in the engine
// package.
//
// # Quick Start
//
//	o, err := accord.New(
//	    accord.WithStore(memory.New()),
//	    accord.WithConcurrency(20),
//	)
//
// # Architecture
//
// Accord follows a composable store pattern where each subsystem (workflow,
// ledger, compliance, approval, settlement) defines its own store interface.
// A single backend implements all of them.
//
// The ledger is the one piece of process-wide shared state: appends are
// serialized so sequence numbers are gapless and every entry links to its
// predecessor's hash. Nothing in this module ever updates or deletes a
// ledger row.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package accord
