package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

const memberColumns = `pm.id, pm.project_id, pm.user_id, pm.additional_permission, pm.added_at`

// Store persists projects and their members
type Store struct {
	db storage.Querier
}

// NewStore creates a project store
func NewStore(db storage.Querier) *Store {
	return &Store{db: db}
}

// Tx returns a store bound to tx
func (s *Store) Tx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// CreateProject inserts a project row
func (s *Store) CreateProject(ctx context.Context, key, name string, createdAt time.Time) (*Project, error) {
	project := &Project{Key: key, Name: name, CreatedAt: createdAt}
	query := `
		INSERT INTO projects (project_key, name, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, key, name, createdAt).Scan(&project.ID); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

// GetProject retrieves a project by id
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	query := `SELECT id, project_key, name, created_at FROM projects WHERE id = $1`

	project := &Project{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&project.ID, &project.Key, &project.Name, &project.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// InsertMember adds userID to projectID. The (project, user) pair is unique;
// a second insert returns ErrMemberExists and writes nothing.
func (s *Store) InsertMember(ctx context.Context, userID string, projectID int64, addedAt time.Time) (*ProjectMember, error) {
	member := &ProjectMember{ProjectID: projectID, UserID: userID, AddedAt: addedAt}
	query := `
		INSERT INTO project_members (project_id, user_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO NOTHING
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, projectID, userID, addedAt).Scan(&member.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s, project %d", ErrMemberExists, userID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return member, nil
}

// FindMember retrieves the membership of userID in projectID
func (s *Store) FindMember(ctx context.Context, userID string, projectID int64) (*ProjectMember, error) {
	query := `SELECT ` + memberColumns + ` FROM project_members pm WHERE pm.project_id = $1 AND pm.user_id = $2`

	member, err := scanMember(s.db.QueryRowContext(ctx, query, projectID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s, project %d", ErrMemberNotFound, userID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// GetMember retrieves a membership by id
func (s *Store) GetMember(ctx context.Context, id int64) (*ProjectMember, error) {
	query := `SELECT ` + memberColumns + ` FROM project_members pm WHERE pm.id = $1`

	member, err := scanMember(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrMemberNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// FindMembersForProject lists the members of a project in insertion order
func (s *Store) FindMembersForProject(ctx context.Context, projectID int64) ([]*ProjectMember, error) {
	query := `SELECT ` + memberColumns + ` FROM project_members pm WHERE pm.project_id = $1 ORDER BY pm.id`
	return s.queryMembers(ctx, query, projectID)
}

// FindMembershipsForUserLogin lists every membership of the user with login
func (s *Store) FindMembershipsForUserLogin(ctx context.Context, login string) ([]*ProjectMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE u.login = $1
		ORDER BY pm.id
	`
	return s.queryMembers(ctx, query, strings.ToLower(strings.TrimSpace(login)))
}

// FindByAdminUserLoginAndProject lists the memberships of login in
// projectID whose role assignment holds a PROJECT_ADMIN role
func (s *Store) FindByAdminUserLoginAndProject(ctx context.Context, login string, projectID int64) ([]*ProjectMember, error) {
	query := `
		SELECT DISTINCT ` + memberColumns + `
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		JOIN member_role_assignments a ON a.project_member_id = pm.id
		JOIN member_role_assignment_roles j ON j.assignment_id = a.id
		JOIN member_roles r ON r.id = j.role_id
		WHERE u.login = $1 AND pm.project_id = $2 AND r.kind = $3
		ORDER BY pm.id
	`
	return s.queryMembers(ctx, query, strings.ToLower(strings.TrimSpace(login)), projectID, string(rbac.RoleProjectAdmin))
}

// SetAdditionalPermission replaces the member's additional permission; nil
// clears it
func (s *Store) SetAdditionalPermission(ctx context.Context, memberID int64, permission *ProjectPermission) error {
	var value sql.NullString
	if permission != nil {
		if !permission.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, *permission)
		}
		value = sql.NullString{String: string(*permission), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `UPDATE project_members SET additional_permission = $1 WHERE id = $2`, value, memberID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrMemberNotFound, memberID)
	}
	return nil
}

func (s *Store) queryMembers(ctx context.Context, query string, args ...any) ([]*ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*ProjectMember{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*ProjectMember, error) {
	member := &ProjectMember{}
	var permission sql.NullString
	if err := row.Scan(&member.ID, &member.ProjectID, &member.UserID, &permission, &member.AddedAt); err != nil {
		return nil, err
	}
	if permission.Valid {
		p := ProjectPermission(permission.String)
		member.AdditionalPermission = &p
	}
	return member, nil
}
