// Package store persists extracted service records in a single SQLite file.
//
// The database holds two tables:
//   - services: one row per service file, keyed by source_path
//   - scan_runs: one row per scan with its counters and status
//
// # Upsert semantics
//
// UpsertService inserts a missing row and replaces an existing one. When the
// stored content_hash equals the new one only scan_id and scanned_at move,
// so repeated scans of an unchanged tree leave the data columns untouched.
//
// # Database Configuration
//
//   - WAL mode while open, checkpointed and removed on Close
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - a single connection; the ingest writer is the only writer
//
// Timestamps are stored as RFC 3339 text in UTC.
package store
