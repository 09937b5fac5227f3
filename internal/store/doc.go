// Package store keeps a SQLite history of harness runs.
//
// Each run is one row in runs plus one row per application in
// app_results. The runs row carries the canonical JSON snapshot of the
// report, so two runs with the same outcomes store identical snapshots
// and can be compared byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Listing order uses the seq column, never the wall-clock timestamps.
package store
