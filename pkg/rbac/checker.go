package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Checker answers whether a login holds a grant in a project. Checks are
// fail-closed: a login that is not a member, or a member without an
// assignment, holds nothing.
type Checker struct {
	db     storage.Querier
	policy PolicySource
	deps   Deps
}

// NewChecker creates a checker. A nil policy uses DefaultPolicy.
func NewChecker(db storage.Querier, policy PolicySource, deps Deps) *Checker {
	if policy == nil {
		policy = StaticPolicy{P: DefaultPolicy()}
	}
	return &Checker{db: db, policy: policy, deps: deps.WithDefaults()}
}

// Policy returns the policy currently in effect
func (c *Checker) Policy() Policy {
	return c.policy.Policy()
}

// HasRoleAssignment reports whether login's role assignment in projectID
// holds any role of an acceptable kind
func (c *Checker) HasRoleAssignment(ctx context.Context, login string, projectID int64, acceptable []RoleKind) (bool, error) {
	matched, err := matchGrants(ctx, c.db, login, projectID, acceptable)
	return len(matched) > 0, err
}

// HasPermissionAssignment reports whether login's permission assignment in
// projectID holds any permission of an acceptable kind
func (c *Checker) HasPermissionAssignment(ctx context.Context, login string, projectID int64, acceptable []PermissionKind) (bool, error) {
	matched, err := matchGrants(ctx, c.db, login, projectID, acceptable)
	return len(matched) > 0, err
}

// HasAddMemberPermissionAssignmentForProjectIDAndUserLogin reports whether
// login holds the ADD_MEMBER permission in projectID
func (c *Checker) HasAddMemberPermissionAssignmentForProjectIDAndUserLogin(ctx context.Context, login string, projectID int64) (bool, error) {
	return c.HasPermissionAssignment(ctx, login, projectID, []PermissionKind{PermissionAddMember})
}

// HasRoleAssignmentForProjectAndUserThatAllowsAddingMembersToProject
// reports whether login holds the PROJECT_ADMIN role in projectID
func (c *Checker) HasRoleAssignmentForProjectAndUserThatAllowsAddingMembersToProject(ctx context.Context, login string, projectID int64) (bool, error) {
	return c.HasRoleAssignment(ctx, login, projectID, []RoleKind{RoleProjectAdmin})
}

// Can evaluates capability for login in projectID. The role path and the
// permission path run concurrently; either one allows. On a storage error
// the returned decision denies.
func (c *Checker) Can(ctx context.Context, login string, projectID int64, capability Capability) (_ *Decision, err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.Can",
		attribute.String("capability", string(capability)),
		attribute.Int64("project_id", projectID),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := c.deps.Clock.Now()

	policy := c.policy.Policy()
	rule, err := policy.Rule(capability)
	if err != nil {
		return c.deny(capability, "unknown capability"), err
	}

	key := DecisionKey{
		ProjectID:  projectID,
		Policy:     policy.Fingerprint(),
		Login:      strings.ToLower(login),
		Capability: capability,
	}
	if cached, ok := c.deps.Cache.Get(ctx, key); ok {
		c.deps.Metrics.RecordCacheLookup("decision", true)
		cached.Cached = true
		c.finish(ctx, login, projectID, cached, start)
		return cached, nil
	}
	c.deps.Metrics.RecordCacheLookup("decision", false)

	var (
		roles       []RoleKind
		permissions []PermissionKind
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = matchGrants(gctx, c.db, login, projectID, rule.Roles)
		return err
	})
	g.Go(func() error {
		var err error
		permissions, err = matchGrants(gctx, c.db, login, projectID, rule.Permissions)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.deny(capability, "check failed"), err
	}

	decision := &Decision{
		Capability:         capability,
		Allowed:            len(roles) > 0 || len(permissions) > 0,
		MatchedRoles:       roles,
		MatchedPermissions: permissions,
		CheckedAt:          c.deps.Clock.Now().UTC(),
	}
	switch {
	case len(roles) > 0:
		decision.Reason = "granted by role"
	case len(permissions) > 0:
		decision.Reason = "granted by permission"
	default:
		decision.Reason = "no matching role or permission"
	}

	c.deps.Cache.Set(ctx, key, decision)
	c.finish(ctx, login, projectID, decision, start)
	return decision, nil
}

func (c *Checker) deny(capability Capability, reason string) *Decision {
	return &Decision{
		Capability: capability,
		Reason:     reason,
		CheckedAt:  c.deps.Clock.Now().UTC(),
	}
}

func (c *Checker) finish(ctx context.Context, login string, projectID int64, d *Decision, start time.Time) {
	c.deps.Metrics.RecordCapabilityCheck(string(d.Capability), d.Allowed, c.deps.Clock.Since(start))
	if d.Allowed {
		return
	}

	c.deps.Logger.WithFields(map[string]interface{}{
		"login":      login,
		"project_id": projectID,
		"capability": string(d.Capability),
	}).Debug("Capability denied")
	c.deps.Audit.Log(ctx, &audit.Event{
		Type:      audit.EventTypeAccessDenied,
		Actor:     login,
		ProjectID: projectID,
		Message:   d.Reason,
		Metadata:  map[string]interface{}{"capability": string(d.Capability)},
	})
}

// resolveMember finds the membership of login in projectID
func resolveMember(ctx context.Context, q storage.Querier, login string, projectID int64) (int64, bool, error) {
	query := `
		SELECT pm.id
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE u.login = $1 AND pm.project_id = $2
	`

	var memberID int64
	err := q.QueryRowContext(ctx, query, strings.ToLower(login), projectID).Scan(&memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve project member: %w", err)
	}
	return memberID, true, nil
}

// matchGrants returns the acceptable kinds held by login's assignment
func matchGrants[K Kind](ctx context.Context, q storage.Querier, login string, projectID int64, acceptable []K) ([]K, error) {
	if len(acceptable) == 0 || login == "" {
		return nil, nil
	}

	memberID, ok, err := resolveMember(ctx, q, login, projectID)
	if err != nil || !ok {
		return nil, err
	}

	assignment, err := loadAssignment[K](ctx, q, "a.project_member_id = $1", memberID)
	if errors.Is(err, ErrAssignmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return assignment.Grants.MatchingKinds(acceptable), nil
}
