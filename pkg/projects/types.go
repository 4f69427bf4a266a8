package projects

import "time"

// ProjectPermission is an extra capability a member may carry on top of
// the ledger grants
type ProjectPermission string

const (
	PermissionCloseBill    ProjectPermission = "CLOSE_BILL"
	PermissionCloseProject ProjectPermission = "CLOSE_PROJECT"
)

// Valid reports whether p is a known project permission
func (p ProjectPermission) Valid() bool {
	return p == PermissionCloseBill || p == PermissionCloseProject
}

// Project is a unit of collaboration that owns members and bills
type Project struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectMember links a user to a project. Grants are held by the member's
// role and permission assignments, not by the member row itself.
type ProjectMember struct {
	ID                   int64              `json:"id"`
	ProjectID            int64              `json:"project_id"`
	UserID               string             `json:"user_id"`
	AdditionalPermission *ProjectPermission `json:"additional_permission,omitempty"`
	AddedAt              time.Time          `json:"added_at"`
}
