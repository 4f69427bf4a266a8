// Package rbac implements the project membership permission model.
//
// The model has three layers:
//
//   - Catalog: role and permission grant tokens (MemberRole, MemberPermission).
//     Several tokens may share a kind; tokens are never deleted.
//   - Ledger: one role assignment and one permission assignment per project
//     member, each carrying a set of catalog tokens.
//   - Checker: resolves a login's membership in a project and tests whether
//     its assignments hold an acceptable kind.
//
// Checks are fail-closed. A login without a membership, or a member without
// an assignment, is denied without error.
//
// Capabilities bundle acceptable role and permission kinds into named
// actions:
//
//	checker := rbac.NewChecker(db, rbac.StaticPolicy{P: rbac.DefaultPolicy()}, rbac.Deps{})
//	decision, err := checker.Can(ctx, "alice", projectID, rbac.CapabilityCloseBill)
//	if err != nil || !decision.Allowed {
//		return ErrForbidden
//	}
//
// Policies can be loaded from YAML with LoadPolicyFile and reloaded on change
// with PolicyWatcher. Decisions may be cached in memory or in Redis; the
// ledger invalidates a project's cached decisions on every grant change.
package rbac
