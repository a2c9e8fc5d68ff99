// Package store provides SQLite-backed persistence for the sync mirror.
//
// The mirror holds one row per local object that has a remote counterpart:
//
//	sync_records(object_type, local_id, remote_id, snapshot, created_at, updated_at)
//	PRIMARY KEY (object_type, local_id)
//
// # Critical Patterns
//
// Keyed uniqueness
//   - At most one record per (object_type, local_id)
//   - Upsert is a single INSERT ... ON CONFLICT DO UPDATE statement
//
// Canonical snapshots
//   - snapshot is stored as canonical JSON TEXT (see internal/ir)
//   - The store never interprets it
//
// Timestamps
//   - created_at is written once, updated_at on every upsert
//   - Stored as fixed-width UTC text so they sort lexically
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Both github.com/mattn/go-sqlite3 (DriverCGO, the default) and the cgo-free
// modernc.org/sqlite (DriverPure) are registered; WithDriver picks one.
package store
