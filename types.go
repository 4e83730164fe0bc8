package permission

import "time"

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Permission is one node of the permission forest. Nodes are created by
// administrative seeding and are read-only inputs to the engine.
type Permission struct {
	ID                 string `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	Resource           string `json:"resource" yaml:"resource"`
	Action             string `json:"action" yaml:"action"`
	ServiceID          string `json:"service_id" yaml:"service_id"`
	Type               string `json:"type" yaml:"type"`
	Priority           int    `json:"priority" yaml:"priority"`
	ParentID           string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Path               string `json:"path" yaml:"path"`
	Level              int    `json:"level" yaml:"level"`
	IsWildcard         bool   `json:"is_wildcard" yaml:"is_wildcard"`
	WildcardPattern    string `json:"wildcard_pattern,omitempty" yaml:"wildcard_pattern,omitempty"`
	InheritsFromParent bool   `json:"inherits_from_parent" yaml:"inherits_from_parent"`
	IsImplicit         bool   `json:"is_implicit" yaml:"is_implicit"`
	IsActive           bool   `json:"is_active" yaml:"is_active"`
}

// Role is a named grant holder. GroupID is empty for global/system roles and
// set for group-scoped custom roles.
type Role struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	GroupID      string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	IsSystemRole bool   `json:"is_system_role" yaml:"is_system_role"`
}

// RolePermission is one grant row. GroupID scopes the grant to a single group
// context (empty = applies in any group). Conditions holds a serialized
// predicate; empty means unconditional. Zero ValidFrom/ValidUntil are
// unbounded; both bounds are inclusive.
type RolePermission struct {
	RoleID       string    `json:"role_id" yaml:"role_id"`
	PermissionID string    `json:"permission_id" yaml:"permission_id"`
	GroupID      string    `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Conditions   string    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ValidFrom    time.Time `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidUntil   time.Time `json:"valid_until,omitempty" yaml:"valid_until,omitempty"`
}

// ValidAt reports whether the grant's validity window covers t. Both bounds
// are inclusive; zero bounds are open-ended.
func (rp *RolePermission) ValidAt(t time.Time) bool {
	if !rp.ValidFrom.IsZero() && t.Before(rp.ValidFrom) {
		return false
	}
	if !rp.ValidUntil.IsZero() && t.After(rp.ValidUntil) {
		return false
	}
	return true
}

// SubjectContext is the per-request identity of the caller, supplied by the
// host's claims reader. ResourceContext carries runtime resource attributes
// (ownerId, createdAt, ...) for resource-owner and conditional checks.
type SubjectContext struct {
	UserID          string         `json:"user_id"`
	ActiveGroupID   string         `json:"active_group_id,omitempty"`
	Roles           []string       `json:"roles"`
	IsSuperAdmin    bool           `json:"is_super_admin"`
	ResourceContext map[string]any `json:"resource_context,omitempty"`
}

// ============================================================================
// DECISIONS
// ============================================================================

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	Handler   string    `json:"handler,omitempty"` // handler that produced the verdict
	Trace     []string  `json:"trace,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision reason codes. Transient failures (store unavailable, cancelled
// request) are distinct from genuine denials so callers can tell them apart.
const (
	ReasonSuperAdmin       = "super admin bypass"
	ReasonExplicitGrant    = "explicit grant"
	ReasonMultipleGrants   = "multiple permissions satisfied"
	ReasonResourceOwner    = "resource owner"
	ReasonNotResourceOwner = "not resource owner"
	ReasonGroupMember      = "group member"
	ReasonNotGroupMember   = "not a member of required group"
	ReasonInsideWindow     = "inside time window"
	ReasonOutsideWindow    = "outside time window"
	ReasonAncestorGrant    = "implied by ancestor grant"
	ReasonConditionalGrant = "conditional grant satisfied"
	ReasonDefaultDeny      = "default deny"
	ReasonStoreUnavailable = "grant store unavailable"
	ReasonMalformedPolicy  = "malformed policy name"
)

// Verdict is one handler's contribution to a decision.
type Verdict int

const (
	// VerdictAbstain means the handler has no applicable opinion.
	VerdictAbstain Verdict = iota
	// VerdictSucceed grants the requirement; later handlers are skipped.
	VerdictSucceed
	// VerdictFail denies the requirement and aborts the pipeline.
	VerdictFail
)

func (v Verdict) String() string {
	switch v {
	case VerdictSucceed:
		return "succeed"
	case VerdictFail:
		return "fail"
	default:
		return "abstain"
	}
}

// CheckMode selects conjunction or disjunction for multi-permission checks.
type CheckMode string

const (
	ModeAll CheckMode = "AND"
	ModeAny CheckMode = "OR"
)
