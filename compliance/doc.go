// Package compliance evaluates declarative rule definitions against
// workflow event payloads and records the outcome as checkpoints in the
// trust ledger.
//
// Rules are a small tagged operator set (equality, ordering, membership,
// presence) over payload fields. Evaluation is fail-closed: a missing
// field, a type mismatch, or an unknown operator fails the rule rather
// than passing it, and a malformed rule is reported as a configuration
// error without aborting evaluation of the remaining rules.
package compliance
