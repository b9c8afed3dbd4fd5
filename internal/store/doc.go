// Package store provides SQLite-backed durable storage for banish run logs.
//
// The store implements an append-only log with:
//   - Runs: one row per execution, holding everything needed to replay it
//     (source, program hash, initial environment, engine options) and its
//     outcome once finished
//   - Events: the run's trace, keyed by (run_id, seq)
//
// # Critical Patterns
//
// Idempotent Appends
//   - PRIMARY KEY(run_id, seq) with ON CONFLICT DO NOTHING
//   - Re-recording an event is a no-op
//
// Logical Identity and Time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Run IDs are UUIDv7, so ORDER BY id is start order
//
// Deterministic Query Results
//   - Event queries use ORDER BY seq ASC
//   - Run queries use ORDER BY id COLLATE BINARY ASC
//
// Replay Inputs Are Self-Contained
//   - A run row carries its source text and initial environment
//   - Replaying never depends on files that may have changed since
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
