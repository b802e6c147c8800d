package accord

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// Concurrency is the maximum number of tasks dispatched concurrently
	// to the external executor.
	Concurrency int

	// RetryPollInterval is how often the engine polls for queued tasks
	// whose scheduled run time has arrived (retries and rate-limit
	// deferrals).
	RetryPollInterval time.Duration

	// TimeoutSweepInterval is how often running tasks are checked
	// against their declared maximum duration.
	TimeoutSweepInterval time.Duration

	// DefaultMaxRetries applies to task specs that declare no retry
	// budget (zero MaxRetries). A task with max retries N is attempted
	// N+1 times.
	DefaultMaxRetries int

	// DefaultTaskTimeout applies to task specs that declare no maximum
	// duration. Zero disables the timeout.
	DefaultTaskTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// SealSchedule is the cron expression on which the ledger sealer
	// builds Merkle blocks over unsealed events. Empty disables sealing.
	SealSchedule string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:          10,
		RetryPollInterval:    500 * time.Millisecond,
		TimeoutSweepInterval: 5 * time.Second,
		DefaultMaxRetries:    3,
		DefaultTaskTimeout:   0,
		ShutdownTimeout:      30 * time.Second,
		SealSchedule:         "",
	}
}
