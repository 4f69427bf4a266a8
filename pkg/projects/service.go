package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
	"github.com/platinummonkey/quartermaster/pkg/users"
)

// Service runs the project and membership commands. Each command is one
// transaction.
type Service struct {
	db      *sql.DB
	store   *Store
	users   *users.Store
	ledger  *rbac.Ledger
	checker *rbac.Checker
	deps    rbac.Deps
}

// NewService creates a project service. A nil checker uses the default
// policy.
func NewService(db *sql.DB, checker *rbac.Checker, deps rbac.Deps) *Service {
	deps = deps.WithDefaults()
	if checker == nil {
		checker = rbac.NewChecker(db, nil, deps)
	}
	return &Service{
		db:      db,
		store:   NewStore(db),
		users:   users.NewStore(db, deps.Clock),
		ledger:  rbac.NewLedger(db, deps),
		checker: checker,
		deps:    deps,
	}
}

// Store returns the underlying project store
func (s *Service) Store() *Store {
	return s.store
}

// CreateProject creates a project named name and makes the creator its
// admin. The project key is the name with every non-ASCII character
// removed.
func (s *Service) CreateProject(ctx context.Context, creatorUserID, name string) (_ *Project, err error) {
	ctx, span := observability.StartSpan(ctx, "projects.CreateProject", attribute.String("creator_id", creatorUserID))
	start := s.deps.Clock.Now()
	defer func() {
		s.deps.Metrics.RecordCommand("create_project", err, s.deps.Clock.Since(start))
		observability.EndSpan(span, err)
	}()

	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	var project *Project
	var member *ProjectMember
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.requireUser(ctx, tx, creatorUserID); err != nil {
			return err
		}

		var err error
		project, err = s.store.Tx(tx).CreateProject(ctx, asciiKey(name), name, s.deps.Clock.Now().UTC())
		if err != nil {
			return err
		}

		member, err = s.addMember(ctx, tx, creatorUserID, project.ID, rbac.RoleProjectAdmin)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, project.ID)

	s.deps.Audit.Log(ctx, &audit.Event{
		Type:            audit.EventTypeProjectCreate,
		ProjectID:       project.ID,
		ProjectMemberID: member.ID,
		Message:         "project created",
		Metadata:        map[string]interface{}{"key": project.Key, "creator_id": creatorUserID},
	})
	s.logger(ctx).WithFields(map[string]interface{}{
		"project_id":  project.ID,
		"project_key": project.Key,
	}).Info("Project created")

	return project, nil
}

// CreateProjectForLogin resolves the creator by login and creates the
// project
func (s *Service) CreateProjectForLogin(ctx context.Context, login, name string) (*Project, error) {
	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	return s.CreateProject(ctx, user.ID, name)
}

// AddAsAdmin adds userID to projectID with the PROJECT_ADMIN role
func (s *Service) AddAsAdmin(ctx context.Context, userID string, projectID int64) (*ProjectMember, error) {
	return s.AddMember(ctx, userID, projectID, rbac.RoleProjectAdmin)
}

// AddMember adds userID to projectID and grants role through the ledger
func (s *Service) AddMember(ctx context.Context, userID string, projectID int64, role rbac.RoleKind) (_ *ProjectMember, err error) {
	ctx, span := observability.StartSpan(ctx, "projects.AddMember",
		attribute.Int64("project_id", projectID),
		attribute.String("role", string(role)),
	)
	defer func() { observability.EndSpan(span, err) }()

	var member *ProjectMember
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		member, err = s.addMember(ctx, tx, userID, projectID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, projectID)
	return member, nil
}

// AddMembers adds every distinct user in userIDs to projectID with the
// BILL_CONTRIBUTOR role. actorLogin must hold the add_member capability.
// Either every user is added or none is.
func (s *Service) AddMembers(ctx context.Context, actorLogin string, projectID int64, userIDs []string) (_ []*ProjectMember, err error) {
	ctx, span := observability.StartSpan(ctx, "projects.AddMembers",
		attribute.Int64("project_id", projectID),
		attribute.Int("count", len(userIDs)),
	)
	start := s.deps.Clock.Now()
	defer func() {
		s.deps.Metrics.RecordCommand("add_members", err, s.deps.Clock.Since(start))
		observability.EndSpan(span, err)
	}()

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	// the check runs before the transaction opens; on SQLite both share one
	// connection
	decision, err := s.checker.Can(ctx, actorLogin, projectID, rbac.CapabilityAddMember)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s may not add members to project %d", ErrForbidden, actorLogin, projectID)
	}

	members := make([]*ProjectMember, 0, len(userIDs))
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		seen := make(map[string]struct{}, len(userIDs))
		for _, userID := range userIDs {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}

			member, err := s.addMember(ctx, tx, userID, projectID, rbac.RoleBillContributor)
			if err != nil {
				return err
			}
			members = append(members, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, projectID)
	return members, nil
}

// SetAdditionalPermission replaces the member's additional permission
func (s *Service) SetAdditionalPermission(ctx context.Context, memberID int64, permission *ProjectPermission) error {
	if err := s.store.SetAdditionalPermission(ctx, memberID, permission); err != nil {
		return err
	}

	value := ""
	if permission != nil {
		value = string(*permission)
	}
	s.deps.Audit.Log(ctx, &audit.Event{
		Type:            audit.EventTypeMemberPermissionChange,
		ProjectMemberID: memberID,
		Kind:            value,
		Message:         "additional permission changed",
	})
	return nil
}

// GetProject retrieves a project by id
func (s *Service) GetProject(ctx context.Context, id int64) (*Project, error) {
	return s.store.GetProject(ctx, id)
}

// FindMember retrieves the membership of userID in projectID
func (s *Service) FindMember(ctx context.Context, userID string, projectID int64) (*ProjectMember, error) {
	return s.store.FindMember(ctx, userID, projectID)
}

// FindMembersForProject lists the members of projectID
func (s *Service) FindMembersForProject(ctx context.Context, projectID int64) ([]*ProjectMember, error) {
	return s.store.FindMembersForProject(ctx, projectID)
}

// FindMembershipsForUserLogin lists the memberships of login
func (s *Service) FindMembershipsForUserLogin(ctx context.Context, login string) ([]*ProjectMember, error) {
	return s.store.FindMembershipsForUserLogin(ctx, login)
}

// FindByAdminUserLoginAndProject lists admin memberships of login in
// projectID
func (s *Service) FindByAdminUserLoginAndProject(ctx context.Context, login string, projectID int64) ([]*ProjectMember, error) {
	return s.store.FindByAdminUserLoginAndProject(ctx, login, projectID)
}

func (s *Service) addMember(ctx context.Context, tx *sql.Tx, userID string, projectID int64, role rbac.RoleKind) (*ProjectMember, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", rbac.ErrInvalidKind, role)
	}
	if err := s.requireUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	store := s.store.Tx(tx)
	if _, err := store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	member, err := store.InsertMember(ctx, userID, projectID, s.deps.Clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	ledger := s.ledger.Tx(tx)
	catalogRole, err := ledger.Catalog().EnsureRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if _, err := ledger.CreateRoleAssignment(ctx, member.ID, catalogRole.ID); err != nil {
		return nil, err
	}

	s.deps.Audit.Log(ctx, &audit.Event{
		Type:            audit.EventTypeMemberAdd,
		ProjectID:       projectID,
		ProjectMemberID: member.ID,
		Kind:            string(role),
		Message:         "member added",
		Metadata:        map[string]interface{}{"user_id": userID},
	})
	return member, nil
}

func (s *Service) requireUser(ctx context.Context, tx *sql.Tx, userID string) error {
	exists, err := s.users.Tx(tx).Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", users.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, projectID int64) {
	if err := s.deps.Cache.InvalidateProject(ctx, projectID); err != nil {
		s.logger(ctx).WithError(err).WithField("project_id", projectID).Warn("Failed to invalidate cached decisions")
	}
}

func (s *Service) logger(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return s.deps.Logger
}

// asciiKey drops every code point above U+007F and keeps the rest as is
func asciiKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
