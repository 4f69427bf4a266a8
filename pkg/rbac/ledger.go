package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Ledger records which catalog entries are granted to which project member.
// Grants are only ever attached through an assignment aggregate; set
// mutations are single statements against a composite-key join table, so
// concurrent writers cannot lose each other's updates.
type Ledger struct {
	db      storage.Querier
	catalog *Catalog
	deps    Deps
}

// NewLedger creates a ledger store
func NewLedger(db storage.Querier, deps Deps) *Ledger {
	deps = deps.WithDefaults()
	return &Ledger{db: db, catalog: NewCatalog(db, deps), deps: deps}
}

// Tx returns a ledger bound to tx
func (l *Ledger) Tx(tx *sql.Tx) *Ledger {
	return &Ledger{db: tx, catalog: l.catalog.Tx(tx), deps: l.deps}
}

// Catalog returns the catalog sharing the ledger's connection
func (l *Ledger) Catalog() *Catalog {
	return l.catalog
}

// CreateRoleAssignment attaches roleIDs to the member's role assignment,
// creating the assignment if the member has none. Re-attaching a role is a
// no-op. The returned aggregate is fully loaded.
func (l *Ledger) CreateRoleAssignment(ctx context.Context, memberID int64, roleIDs ...int64) (*RoleAssignment, error) {
	return createAssignment[RoleKind](ctx, l, memberID, roleIDs)
}

// CreatePermissionAssignment attaches permissionIDs to the member's
// permission assignment, creating it if needed
func (l *Ledger) CreatePermissionAssignment(ctx context.Context, memberID int64, permissionIDs ...int64) (*PermissionAssignment, error) {
	return createAssignment[PermissionKind](ctx, l, memberID, permissionIDs)
}

// AddRole attaches roleID to a role assignment. Adding a role that is
// already present leaves the set unchanged.
func (l *Ledger) AddRole(ctx context.Context, assignmentID, roleID int64) error {
	return addGrant[RoleKind](ctx, l, assignmentID, roleID)
}

// RemoveRole detaches roleID from a role assignment. Removing an absent
// role is a no-op.
func (l *Ledger) RemoveRole(ctx context.Context, assignmentID, roleID int64) error {
	return removeGrant[RoleKind](ctx, l, assignmentID, roleID)
}

// AddPermission attaches permissionID to a permission assignment
func (l *Ledger) AddPermission(ctx context.Context, assignmentID, permissionID int64) error {
	return addGrant[PermissionKind](ctx, l, assignmentID, permissionID)
}

// RemovePermission detaches permissionID from a permission assignment
func (l *Ledger) RemovePermission(ctx context.Context, assignmentID, permissionID int64) error {
	return removeGrant[PermissionKind](ctx, l, assignmentID, permissionID)
}

// GetRoleAssignment loads a role assignment with its roles
func (l *Ledger) GetRoleAssignment(ctx context.Context, id int64) (*RoleAssignment, error) {
	return loadAssignment[RoleKind](ctx, l.db, "a.id = $1", id)
}

// GetPermissionAssignment loads a permission assignment with its permissions
func (l *Ledger) GetPermissionAssignment(ctx context.Context, id int64) (*PermissionAssignment, error) {
	return loadAssignment[PermissionKind](ctx, l.db, "a.id = $1", id)
}

// GetRoleAssignmentForMember loads the member's role assignment
func (l *Ledger) GetRoleAssignmentForMember(ctx context.Context, memberID int64) (*RoleAssignment, error) {
	return loadAssignment[RoleKind](ctx, l.db, "a.project_member_id = $1", memberID)
}

// GetPermissionAssignmentForMember loads the member's permission assignment
func (l *Ledger) GetPermissionAssignmentForMember(ctx context.Context, memberID int64) (*PermissionAssignment, error) {
	return loadAssignment[PermissionKind](ctx, l.db, "a.project_member_id = $1", memberID)
}

// ListRoleAssignments loads every role assignment with its roles
func (l *Ledger) ListRoleAssignments(ctx context.Context) ([]*RoleAssignment, error) {
	return listAssignments[RoleKind](ctx, l.db, "", nil)
}

// ListPermissionAssignments loads every permission assignment with its
// permissions
func (l *Ledger) ListPermissionAssignments(ctx context.Context) ([]*PermissionAssignment, error) {
	return listAssignments[PermissionKind](ctx, l.db, "", nil)
}

// ListRoleAssignmentsForProject loads the role assignments of every member
// of a project
func (l *Ledger) ListRoleAssignmentsForProject(ctx context.Context, projectID int64) ([]*RoleAssignment, error) {
	return listAssignments[RoleKind](ctx, l.db, "pm.project_id = $1", projectID)
}

func createAssignment[K Kind](ctx context.Context, l *Ledger, memberID int64, catalogIDs []int64) (*Assignment[K], error) {
	table := tableFor[K]()
	var assignmentID, projectID int64

	err := storage.InTx(ctx, l.db, func(q storage.Querier) error {
		var err error
		projectID, err = memberProject(ctx, q, memberID)
		if err != nil {
			return err
		}
		for _, id := range catalogIDs {
			if _, err := getEntry[K](ctx, q, id); err != nil {
				return err
			}
		}

		var created bool
		assignmentID, created, err = upsertAssignment(ctx, q, table, memberID, l.deps.Clock.Now().UTC())
		if err != nil {
			return err
		}
		if created {
			eventType := audit.EventTypePermissionAssignmentCreate
			if table == roleTable {
				eventType = audit.EventTypeRoleAssignmentCreate
			}
			l.deps.Audit.Log(ctx, &audit.Event{
				Type:            eventType,
				ProjectID:       projectID,
				ProjectMemberID: memberID,
				AssignmentID:    assignmentID,
				Message:         table.family + " assignment created",
			})
		}

		for _, id := range catalogIDs {
			if err := l.attach(ctx, q, table, projectID, assignmentID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.invalidate(ctx, projectID)
	return loadAssignment[K](ctx, l.db, "a.id = $1", assignmentID)
}

// upsertAssignment returns the member's assignment id, inserting the
// aggregate when it does not exist yet
func upsertAssignment(ctx context.Context, q storage.Querier, table grantTable, memberID int64, now time.Time) (int64, bool, error) {
	selectQuery := fmt.Sprintf(`SELECT id FROM %s WHERE project_member_id = $1`, table.assignments)

	var id int64
	err := q.QueryRowContext(ctx, selectQuery, memberID).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to get %s assignment: %w", table.family, err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (project_member_id, assigned_at)
		VALUES ($1, $2)
		ON CONFLICT (project_member_id) DO NOTHING
		RETURNING id
	`, table.assignments)
	err = q.QueryRowContext(ctx, insertQuery, memberID, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race to a concurrent writer; use its aggregate
		if err := q.QueryRowContext(ctx, selectQuery, memberID).Scan(&id); err != nil {
			return 0, false, fmt.Errorf("failed to get %s assignment: %w", table.family, err)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to create %s assignment: %w", table.family, err)
	}

	return id, true, nil
}

func (l *Ledger) attach(ctx context.Context, q storage.Querier, table grantTable, projectID, assignmentID, catalogID int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (assignment_id, %s)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, table.join, table.joinColumn)
	result, err := q.ExecContext(ctx, query, assignmentID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", table.family, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	eventType := audit.EventTypePermissionGrant
	if table == roleTable {
		eventType = audit.EventTypeRoleGrant
	}
	l.deps.Audit.Log(ctx, &audit.Event{
		Type:         eventType,
		ProjectID:    projectID,
		AssignmentID: assignmentID,
		CatalogID:    catalogID,
		Message:      table.family + " granted",
	})
	l.deps.Metrics.RecordGrantMutation(table.family, "add")
	return nil
}

func addGrant[K Kind](ctx context.Context, l *Ledger, assignmentID, catalogID int64) error {
	table := tableFor[K]()
	var projectID int64

	err := storage.InTx(ctx, l.db, func(q storage.Querier) error {
		var err error
		projectID, err = assignmentProject(ctx, q, table, assignmentID)
		if err != nil {
			return err
		}
		if _, err := getEntry[K](ctx, q, catalogID); err != nil {
			return err
		}
		return l.attach(ctx, q, table, projectID, assignmentID, catalogID)
	})
	if err != nil {
		return err
	}

	l.invalidate(ctx, projectID)
	return nil
}

func removeGrant[K Kind](ctx context.Context, l *Ledger, assignmentID, catalogID int64) error {
	table := tableFor[K]()

	projectID, err := assignmentProject(ctx, l.db, table, assignmentID)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE assignment_id = $1 AND %s = $2`, table.join, table.joinColumn)
	result, err := l.db.ExecContext(ctx, query, assignmentID, catalogID)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", table.family, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	eventType := audit.EventTypePermissionRevoke
	if table == roleTable {
		eventType = audit.EventTypeRoleRevoke
	}
	l.deps.Audit.Log(ctx, &audit.Event{
		Type:         eventType,
		ProjectID:    projectID,
		AssignmentID: assignmentID,
		CatalogID:    catalogID,
		Message:      table.family + " revoked",
	})
	l.deps.Metrics.RecordGrantMutation(table.family, "remove")
	l.invalidate(ctx, projectID)
	return nil
}

func (l *Ledger) invalidate(ctx context.Context, projectID int64) {
	if err := l.deps.Cache.InvalidateProject(ctx, projectID); err != nil {
		l.deps.Logger.WithError(err).WithField("project_id", projectID).Warn("Failed to invalidate cached decisions")
	}
}

func memberProject(ctx context.Context, q storage.Querier, memberID int64) (int64, error) {
	var projectID int64
	err := q.QueryRowContext(ctx, `SELECT project_id FROM project_members WHERE id = $1`, memberID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrMemberNotFound, memberID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get project member: %w", err)
	}
	return projectID, nil
}

func assignmentProject(ctx context.Context, q storage.Querier, table grantTable, assignmentID int64) (int64, error) {
	query := fmt.Sprintf(`
		SELECT pm.project_id
		FROM %s a
		JOIN project_members pm ON pm.id = a.project_member_id
		WHERE a.id = $1
	`, table.assignments)

	var projectID int64
	err := q.QueryRowContext(ctx, query, assignmentID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s assignment %d", ErrAssignmentNotFound, table.family, assignmentID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s assignment: %w", table.family, err)
	}
	return projectID, nil
}

func loadAssignment[K Kind](ctx context.Context, q storage.Querier, where string, arg any) (*Assignment[K], error) {
	assignments, err := listAssignments[K](ctx, q, where, arg)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("%w: %s assignment", ErrAssignmentNotFound, tableFor[K]().family)
	}
	return assignments[0], nil
}

// listAssignments loads aggregates and their catalog entries with a single
// joined query
func listAssignments[K Kind](ctx context.Context, q storage.Querier, where string, arg any) ([]*Assignment[K], error) {
	table := tableFor[K]()
	query := fmt.Sprintf(`
		SELECT a.id, a.project_member_id, a.assigned_at, c.id, c.kind, c.created_at
		FROM %s a
		JOIN project_members pm ON pm.id = a.project_member_id
		LEFT JOIN %s j ON j.assignment_id = a.id
		LEFT JOIN %s c ON c.id = j.%s
	`, table.assignments, table.join, table.catalog, table.joinColumn)

	var args []any
	if where != "" {
		query += " WHERE " + where
		args = append(args, arg)
	}
	query += " ORDER BY a.id, c.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s assignments: %w", table.family, err)
	}
	defer rows.Close()

	var (
		out     []*Assignment[K]
		current *Assignment[K]
	)
	for rows.Next() {
		var (
			a         Assignment[K]
			entryID   sql.NullInt64
			entryKind sql.NullString
			entryAt   sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.ProjectMemberID, &a.AssignedAt, &entryID, &entryKind, &entryAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s assignment: %w", table.family, err)
		}

		if current == nil || current.ID != a.ID {
			a.Grants = NewGrantSet[K]()
			current = &a
			out = append(out, current)
		}
		if entryID.Valid {
			current.Grants.Add(CatalogEntry[K]{
				ID:        entryID.Int64,
				Kind:      K(entryKind.String),
				CreatedAt: entryAt.Time,
			})
		}
	}

	return out, rows.Err()
}
