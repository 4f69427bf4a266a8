package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Membership events
	EventTypeMemberAdd              EventType = "membership.member_add"
	EventTypeMemberPermissionChange EventType = "membership.additional_permission_change"
	EventTypeProjectCreate          EventType = "membership.project_create"

	// Ledger events
	EventTypeRoleAssignmentCreate       EventType = "ledger.role_assignment_create"
	EventTypeRoleGrant                  EventType = "ledger.role_grant"
	EventTypeRoleRevoke                 EventType = "ledger.role_revoke"
	EventTypePermissionAssignmentCreate EventType = "ledger.permission_assignment_create"
	EventTypePermissionGrant            EventType = "ledger.permission_grant"
	EventTypePermissionRevoke           EventType = "ledger.permission_revoke"

	// Catalog events
	EventTypeCatalogRoleCreate       EventType = "catalog.role_create"
	EventTypeCatalogPermissionCreate EventType = "catalog.permission_create"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Billing events
	EventTypeBillClose EventType = "billing.bill_close"
)

// Event is one entry of the grant-change audit trail
type Event struct {
	Timestamp       time.Time              `json:"timestamp"`
	Type            EventType              `json:"event_type"`
	Actor           string                 `json:"actor,omitempty"`
	ProjectID       int64                  `json:"project_id,omitempty"`
	ProjectMemberID int64                  `json:"project_member_id,omitempty"`
	AssignmentID    int64                  `json:"assignment_id,omitempty"`
	CatalogID       int64                  `json:"catalog_id,omitempty"`
	Kind            string                 `json:"kind,omitempty"`
	Message         string                 `json:"message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Fields flattens the event into structured log fields
func (e *Event) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"audit":      true,
		"event_type": string(e.Type),
		"timestamp":  e.Timestamp,
	}
	if e.Actor != "" {
		fields["actor"] = e.Actor
	}
	if e.ProjectID != 0 {
		fields["project_id"] = e.ProjectID
	}
	if e.ProjectMemberID != 0 {
		fields["project_member_id"] = e.ProjectMemberID
	}
	if e.AssignmentID != 0 {
		fields["assignment_id"] = e.AssignmentID
	}
	if e.CatalogID != 0 {
		fields["catalog_id"] = e.CatalogID
	}
	if e.Kind != "" {
		fields["kind"] = e.Kind
	}
	for k, v := range e.Metadata {
		fields[k] = v
	}
	return fields
}
