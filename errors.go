package accord

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("accord: no store configured")
	ErrStoreClosed = errors.New("accord: store closed")

	// Not found errors.
	ErrDefinitionNotFound = errors.New("accord: workflow definition not found")
	ErrExecutionNotFound  = errors.New("accord: workflow execution not found")
	ErrTaskNotFound       = errors.New("accord: task not found")
	ErrEventNotFound      = errors.New("accord: ledger event not found")
	ErrBlockNotFound      = errors.New("accord: ledger block not found")
	ErrCheckpointNotFound = errors.New("accord: compliance checkpoint not found")
	ErrApprovalNotFound   = errors.New("accord: approval request not found")
	ErrSignalNotFound     = errors.New("accord: settlement signal not found")

	// Definition errors. A malformed DAG is rejected at creation time
	// and never reaches the scheduler.
	ErrInvalidDefinition  = errors.New("accord: invalid workflow definition")
	ErrInactiveDefinition = errors.New("accord: workflow definition is inactive")

	// State errors.
	ErrInvalidTransition = errors.New("accord: invalid state transition")

	// Conflict errors.
	ErrDuplicateSequence = errors.New("accord: duplicate ledger sequence number")
)
