// Package repositories implements SQLite persistence for engine state.
//
// Key Implementations:
//   - [SQLiteKVStore] : string key/value storage backing the durable cache tier and persisted batch state
//   - [RunRepository] : batch run history ordered by sequence
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and start times.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
