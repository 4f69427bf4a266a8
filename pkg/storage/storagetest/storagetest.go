// Package storagetest provides an in-memory SQLite database with the
// quartermaster schema applied, plus row fixtures for package tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Epoch is the fixed instant used by fixtures
var Epoch = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// NewDB opens a migrated in-memory database that is closed with the test
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), db, storage.DialectSQLite, nil))
	return db
}

// InsertUser inserts an activated user and returns its id
func InsertUser(t *testing.T, db storage.Querier, login string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO users (id, login, email, activated, created_at) VALUES ($1, $2, $3, $4, $5)",
		id, login, login+"@example.com", true, Epoch,
	)
	require.NoError(t, err)
	return id
}

// InsertProject inserts a project using name as its key
func InsertProject(t *testing.T, db storage.Querier, name string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		"INSERT INTO projects (project_key, name, created_at) VALUES ($1, $2, $3) RETURNING id",
		name, name, Epoch,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertMember inserts a bare project member without any grants
func InsertMember(t *testing.T, db storage.Querier, projectID int64, userID string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		"INSERT INTO project_members (project_id, user_id, added_at) VALUES ($1, $2, $3) RETURNING id",
		projectID, userID, Epoch,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
