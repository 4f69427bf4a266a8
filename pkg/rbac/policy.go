package rbac

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Capability names a guarded action
type Capability string

const (
	CapabilityAddMember    Capability = "add_member"
	CapabilityCloseBill    Capability = "close_bill"
	CapabilityCloseProject Capability = "close_project"
)

// Rule lists the role kinds and permission kinds that grant a capability.
// Holding any one of them is enough.
type Rule struct {
	Roles       []RoleKind       `yaml:"roles" json:"roles"`
	Permissions []PermissionKind `yaml:"permissions" json:"permissions"`
}

// Policy maps capabilities to the rules that grant them
type Policy map[Capability]Rule

// PolicySource supplies the policy in effect for a check
type PolicySource interface {
	Policy() Policy
}

// StaticPolicy is a PolicySource that never changes
type StaticPolicy struct {
	P Policy
}

// Policy implements PolicySource
func (s StaticPolicy) Policy() Policy {
	return s.P
}

// DefaultPolicy returns the built-in capability rules
func DefaultPolicy() Policy {
	return Policy{
		CapabilityAddMember: {
			Roles:       []RoleKind{RoleProjectAdmin},
			Permissions: []PermissionKind{PermissionAddMember},
		},
		CapabilityCloseBill: {
			Roles:       []RoleKind{RoleProjectAdmin, RoleBillContributor},
			Permissions: []PermissionKind{PermissionCloseBill},
		},
		CapabilityCloseProject: {
			Roles:       []RoleKind{RoleProjectAdmin},
			Permissions: []PermissionKind{PermissionCloseProject},
		},
	}
}

// Rule returns the rule for capability
func (p Policy) Rule(capability Capability) (Rule, error) {
	rule, ok := p[capability]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	return rule, nil
}

// Capabilities returns the capability names in the policy, sorted
func (p Policy) Capabilities() []Capability {
	out := make([]Capability, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fingerprint identifies the rules of p. Policies granting the same kinds
// for the same capabilities share a fingerprint whatever the order they
// list them in.
func (p Policy) Fingerprint() string {
	canonical := make(map[Capability]Rule, len(p))
	for capability, rule := range p {
		roles := append([]RoleKind(nil), rule.Roles...)
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		permissions := append([]PermissionKind(nil), rule.Permissions...)
		sort.Slice(permissions, func(i, j int) bool { return permissions[i] < permissions[j] })
		canonical[capability] = Rule{Roles: roles, Permissions: permissions}
	}

	// map keys are marshalled in sorted order
	data, err := json.Marshal(canonical)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Validate checks that every rule refers to known kinds
func (p Policy) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no capabilities defined", ErrInvalidPolicy)
	}
	for capability, rule := range p {
		if capability == "" {
			return fmt.Errorf("%w: empty capability name", ErrInvalidPolicy)
		}
		for _, r := range rule.Roles {
			if !r.Valid() {
				return fmt.Errorf("%w: capability %q: unknown role %q", ErrInvalidPolicy, capability, r)
			}
		}
		for _, perm := range rule.Permissions {
			if !perm.Valid() {
				return fmt.Errorf("%w: capability %q: unknown permission %q", ErrInvalidPolicy, capability, perm)
			}
		}
	}
	return nil
}

type policyFile struct {
	Capabilities map[Capability]Rule `yaml:"capabilities"`
}

// ParsePolicy decodes a YAML policy document. Capabilities not named in the
// document keep their default rules.
func ParsePolicy(data []byte) (Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	policy := DefaultPolicy()
	for capability, rule := range file.Capabilities {
		policy[capability] = rule
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// LoadPolicyFile reads and parses the policy at path
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}
