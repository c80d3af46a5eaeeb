// Package store provides SQLite-backed local storage for bizsync.
//
// The store holds three tables:
//   - records: synchronizable entities keyed by (kind, id), unique by
//     (kind, alternate_id)
//   - send_queue: durable FIFO of pending outbound operations, ordered by
//     an AUTOINCREMENT id
//   - send_errors: dead letters, entries that exhausted their retry budget
//
// # Write serialization
//
// Mutations take a per-table lock (one per record kind, one for the queue
// tables) so no two writers touch the same logical table at once. Moves
// between send_queue and send_errors run in a single transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Every query that returns more than one row orders by id ascending.
// Missing rows are reported as ErrNotFound.
package store
