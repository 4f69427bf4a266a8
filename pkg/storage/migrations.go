package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/quartermaster/pkg/observability"
)

// Migration is one versioned schema change. SQL may use the {{id}} and
// {{timestamp}} tokens, which are rendered per dialect.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Render expands the dialect tokens in the migration SQL
func (m Migration) Render(dialect Dialect) string {
	var r *strings.Replacer
	switch dialect {
	case DialectSQLite:
		r = strings.NewReplacer("{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{timestamp}}", "TIMESTAMP")
	default:
		r = strings.NewReplacer("{{id}}", "BIGSERIAL PRIMARY KEY", "{{timestamp}}", "TIMESTAMPTZ")
	}
	return r.Replace(m.SQL)
}

// Migrations returns the ordered schema migrations
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					login VARCHAR(100) NOT NULL UNIQUE,
					email VARCHAR(254),
					activated BOOLEAN NOT NULL DEFAULT FALSE,
					created_at {{timestamp}} NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create projects and project_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id {{id}},
					project_key VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					created_at {{timestamp}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS project_members (
					id {{id}},
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					additional_permission VARCHAR(32),
					added_at {{timestamp}} NOT NULL,
					UNIQUE(project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create role and permission catalog tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS member_roles (
					id {{id}},
					kind VARCHAR(32) NOT NULL,
					created_at {{timestamp}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS member_permissions (
					id {{id}},
					kind VARCHAR(32) NOT NULL,
					created_at {{timestamp}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_member_roles_kind ON member_roles(kind);
				CREATE INDEX IF NOT EXISTS idx_member_permissions_kind ON member_permissions(kind);
			`,
		},
		{
			Version:     4,
			Description: "Create assignment ledger tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS member_role_assignments (
					id {{id}},
					project_member_id BIGINT NOT NULL UNIQUE REFERENCES project_members(id) ON DELETE CASCADE,
					assigned_at {{timestamp}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS member_role_assignment_roles (
					assignment_id BIGINT NOT NULL REFERENCES member_role_assignments(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES member_roles(id),
					PRIMARY KEY (assignment_id, role_id)
				);

				CREATE TABLE IF NOT EXISTS member_permission_assignments (
					id {{id}},
					project_member_id BIGINT NOT NULL UNIQUE REFERENCES project_members(id) ON DELETE CASCADE,
					assigned_at {{timestamp}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS member_permission_assignment_permissions (
					assignment_id BIGINT NOT NULL REFERENCES member_permission_assignments(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES member_permissions(id),
					PRIMARY KEY (assignment_id, permission_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create bills and bill_positions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS bills (
					id {{id}},
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					title VARCHAR(255) NOT NULL,
					created_at {{timestamp}} NOT NULL,
					closed_at {{timestamp}},
					final_amount DOUBLE PRECISION
				);

				CREATE TABLE IF NOT EXISTS bill_positions (
					id {{id}},
					bill_id BIGINT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
					title VARCHAR(255),
					cost DOUBLE PRECISION
				);

				CREATE INDEX IF NOT EXISTS idx_bills_project_id ON bills(project_id);
				CREATE INDEX IF NOT EXISTS idx_bill_positions_bill_id ON bill_positions(bill_id);
			`,
		},
	}
}

// RunMigrations applies every migration that is not yet recorded in
// schema_migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("Running migration")

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.Render(dialect)); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				migration.Version, migration.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}
