// Package storage is the persistence collaborator shared by the quartermaster
// domain packages.
//
// # Overview
//
// Every domain store (users, rbac, projects, billing) talks to a relational
// database through the narrow Querier interface so the same code runs against
// a *sql.DB, a *sql.Tx, or a go-sqlmock connection. Two dialects are supported:
//
//   - PostgreSQL via github.com/lib/pq, used in production
//   - SQLite via github.com/mattn/go-sqlite3, used for local runs and tests
//
// Queries are written once with $N placeholders, which both drivers accept as
// long as the numbered parameters first appear in ascending order.
//
// # Transactions
//
// Multi-step commands run inside WithTx, which commits when the callback
// returns nil and rolls back otherwise:
//
//	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
//		project, err := projects.Tx(tx).Create(ctx, name)
//		...
//	})
//
// # Error Taxonomy
//
// ErrNotFound, ErrConflict and ErrValidation are the shared error kinds.
// Domain packages wrap them in their own sentinels so callers can classify
// failures with errors.Is without knowing which package produced them.
//
// # Connections
//
// ConnectionManager keeps a primary connection for writes and round-robins
// reads across optional replicas, falling back to the primary when none are
// healthy. NewRedisClient builds the optional shared cache client.
//
// # Schema
//
// Migrations returns the ordered schema migrations for a dialect and
// RunMigrations applies the pending ones, recording each in
// schema_migrations.
package storage
