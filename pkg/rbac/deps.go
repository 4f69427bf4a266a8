package rbac

import (
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/observability"
)

// Deps are the collaborators shared by the catalog, ledger and checker.
// Every field is optional.
type Deps struct {
	Clock   clockwork.Clock
	Audit   audit.Logger
	Cache   DecisionCache
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// WithDefaults fills unset fields with a real clock and no-op collaborators
func (d Deps) WithDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Audit == nil {
		d.Audit = audit.NoOp()
	}
	if d.Cache == nil {
		d.Cache = NoopDecisionCache{}
	}
	if d.Logger == nil {
		d.Logger = observability.NewNopLogger()
	}
	return d
}

// grantTable names the tables backing one grant family
type grantTable struct {
	family      string
	catalog     string
	assignments string
	join        string
	joinColumn  string
}

var (
	roleTable = grantTable{
		family:      "role",
		catalog:     "member_roles",
		assignments: "member_role_assignments",
		join:        "member_role_assignment_roles",
		joinColumn:  "role_id",
	}
	permissionTable = grantTable{
		family:      "permission",
		catalog:     "member_permissions",
		assignments: "member_permission_assignments",
		join:        "member_permission_assignment_permissions",
		joinColumn:  "permission_id",
	}
)

func tableFor[K Kind]() grantTable {
	var zero K
	if _, ok := any(zero).(RoleKind); ok {
		return roleTable
	}
	return permissionTable
}
