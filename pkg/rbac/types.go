package rbac

import (
	"sort"
	"time"
)

// RoleKind is the closed set of project member roles
type RoleKind string

const (
	RoleProjectAdmin    RoleKind = "PROJECT_ADMIN"
	RoleBillContributor RoleKind = "BILL_CONTRIBUTOR"
)

// AllRoleKinds returns every known role kind
func AllRoleKinds() []RoleKind {
	return []RoleKind{RoleProjectAdmin, RoleBillContributor}
}

// Valid reports whether k is a known role kind
func (k RoleKind) Valid() bool {
	switch k {
	case RoleProjectAdmin, RoleBillContributor:
		return true
	}
	return false
}

// PermissionKind is the closed set of project member permissions
type PermissionKind string

const (
	PermissionAddMember    PermissionKind = "ADD_MEMBER"
	PermissionCloseBill    PermissionKind = "CLOSE_BILL"
	PermissionCloseProject PermissionKind = "CLOSE_PROJECT"
)

// AllPermissionKinds returns every known permission kind
func AllPermissionKinds() []PermissionKind {
	return []PermissionKind{PermissionAddMember, PermissionCloseBill, PermissionCloseProject}
}

// Valid reports whether k is a known permission kind
func (k PermissionKind) Valid() bool {
	switch k {
	case PermissionAddMember, PermissionCloseBill, PermissionCloseProject:
		return true
	}
	return false
}

// Kind constrains the grant kinds stored in the catalog
type Kind interface {
	~string
	Valid() bool
}

// CatalogEntry is one grant token of the catalog. Several entries may share
// a kind; each is a distinct token that assignments refer to by id.
type CatalogEntry[K Kind] struct {
	ID        int64     `json:"id"`
	Kind      K         `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberRole is a role catalog entry
type MemberRole = CatalogEntry[RoleKind]

// MemberPermission is a permission catalog entry
type MemberPermission = CatalogEntry[PermissionKind]

// GrantSet is a set of catalog entries keyed by catalog id. The zero value
// is an empty set ready to use.
type GrantSet[K Kind] struct {
	entries map[int64]CatalogEntry[K]
}

// RoleSet is the set of roles attached to a role assignment
type RoleSet = GrantSet[RoleKind]

// PermissionSet is the set of permissions attached to a permission assignment
type PermissionSet = GrantSet[PermissionKind]

// NewGrantSet creates a set holding entries
func NewGrantSet[K Kind](entries ...CatalogEntry[K]) *GrantSet[K] {
	s := &GrantSet[K]{}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether the set changed
func (s *GrantSet[K]) Add(e CatalogEntry[K]) bool {
	if s.entries == nil {
		s.entries = make(map[int64]CatalogEntry[K])
	}
	if _, ok := s.entries[e.ID]; ok {
		return false
	}
	s.entries[e.ID] = e
	return true
}

// Remove deletes the entry with id and reports whether the set changed
func (s *GrantSet[K]) Remove(id int64) bool {
	if s == nil {
		return false
	}
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Contains reports whether the entry with id is in the set
func (s *GrantSet[K]) Contains(id int64) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of entries
func (s *GrantSet[K]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the entries ordered by id
func (s *GrantSet[K]) Entries() []CatalogEntry[K] {
	if s == nil {
		return nil
	}
	out := make([]CatalogEntry[K], 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Kinds returns the distinct kinds in the set, sorted
func (s *GrantSet[K]) Kinds() []K {
	if s == nil {
		return nil
	}
	seen := make(map[K]struct{}, len(s.entries))
	out := make([]K, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := seen[e.Kind]; ok {
			continue
		}
		seen[e.Kind] = struct{}{}
		out = append(out, e.Kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MatchingKinds returns the kinds of the set that appear in acceptable
func (s *GrantSet[K]) MatchingKinds(acceptable []K) []K {
	var out []K
	for _, k := range s.Kinds() {
		for _, a := range acceptable {
			if k == a {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// IntersectsKinds reports whether any entry's kind is in acceptable. An
// empty set or an empty acceptable list never intersects.
func (s *GrantSet[K]) IntersectsKinds(acceptable []K) bool {
	return len(s.MatchingKinds(acceptable)) > 0
}

// Assignment is the per-member aggregate that carries a set of catalog
// entries. A member has at most one role assignment and at most one
// permission assignment.
type Assignment[K Kind] struct {
	ID              int64        `json:"id"`
	ProjectMemberID int64        `json:"project_member_id"`
	AssignedAt      time.Time    `json:"assigned_at"`
	Grants          *GrantSet[K] `json:"-"`
}

// RoleAssignment carries the roles granted to a member
type RoleAssignment = Assignment[RoleKind]

// PermissionAssignment carries the permissions granted to a member
type PermissionAssignment = Assignment[PermissionKind]

// Decision is the outcome of a capability check
type Decision struct {
	Capability         Capability       `json:"capability"`
	Allowed            bool             `json:"allowed"`
	MatchedRoles       []RoleKind       `json:"matched_roles,omitempty"`
	MatchedPermissions []PermissionKind `json:"matched_permissions,omitempty"`
	Reason             string           `json:"reason"`
	CheckedAt          time.Time        `json:"checked_at"`
	Cached             bool             `json:"cached,omitempty"`
}
