// Package cron starts workflow executions on recurring schedules.
//
// A Scheduler holds named entries, each binding a cron expression to a
// workflow definition and a fixed input payload. A tick loop fires due
// entries by starting a new execution through the engine. Expressions
// use the standard 5-field cron syntax plus descriptors such as
// "@every 30s" and "@hourly".
//
// The scheduler is single-process: it assumes one running instance per
// deployment and does no leader election or cross-node locking.
package cron
