// Package postgres implements the service repository interfaces against
// PostgreSQL using database/sql and lib/pq.
//
// Status preconditions live in the SQL itself (WHERE status = ...), so
// concurrent workers cannot race past a transition check. The queue claim
// uses FOR UPDATE SKIP LOCKED to hand overlapping sweeps disjoint batches.
package postgres
