package permission

import (
	"fmt"
	"strings"
	"sync"

	"github.com/linguahub/permission/logger"
)

// ============================================================================
// DYNAMIC POLICY PROVIDER
// ============================================================================

// PolicyProvider parses policy-name strings into Requirement variants at
// request time, so a handler naming "Permission:users.read" needs no policy
// pre-registered at startup.
//
// Grammar (case-sensitive prefixes, validated eagerly):
//
//	Permission:<name>
//	Permissions:<name>[,<name>...]:<AND|OR>
//	OptimizedPermissions:<name>[,<name>...]:<AND|OR>
//	Hierarchical:<name>
//	Conditional:<name>
//	ResourceOwner
//	GroupMember:<groupID>
//	TimeWindow:<HH:MM>-<HH:MM>
//	SuperAdmin
//
// Anything outside the grammar is a configuration error and fails closed.
type PolicyProvider struct {
	log logger.Logger

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewPolicyProvider builds a provider. Malformed names are logged once per
// distinct string to keep a misconfigured hot endpoint from flooding logs.
func NewPolicyProvider(log logger.Logger) *PolicyProvider {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &PolicyProvider{log: log, warned: make(map[string]struct{})}
}

// Parse resolves a policy name to its requirement. The error wraps
// ErrMalformedPolicy; callers deny on it.
func (p *PolicyProvider) Parse(policyName string) (Requirement, error) {
	req, err := parsePolicyName(policyName)
	if err != nil {
		p.warnOnce(policyName, err)
		return nil, err
	}
	return req, nil
}

func (p *PolicyProvider) warnOnce(policyName string, err error) {
	p.mu.Lock()
	_, seen := p.warned[policyName]
	if !seen {
		p.warned[policyName] = struct{}{}
	}
	p.mu.Unlock()
	if !seen {
		p.log.Error("malformed dynamic policy", "policy", policyName, "err", err.Error())
	}
}

func parsePolicyName(policyName string) (Requirement, error) {
	switch policyName {
	case "ResourceOwner":
		return ResourceOwnerRequirement{}, nil
	case "SuperAdmin":
		return SuperAdminRequirement{}, nil
	}

	kind, rest, ok := strings.Cut(policyName, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedPolicy, policyName)
	}
	switch kind {
	case "Permission":
		if !validPermissionName(rest) {
			return nil, fmt.Errorf("%w: bad permission name in %q", ErrMalformedPolicy, policyName)
		}
		return PermissionRequirement{Name: rest}, nil
	case "Hierarchical":
		if !validPermissionName(rest) {
			return nil, fmt.Errorf("%w: bad permission name in %q", ErrMalformedPolicy, policyName)
		}
		return HierarchicalPermissionRequirement{Name: rest}, nil
	case "Conditional":
		if !validPermissionName(rest) {
			return nil, fmt.Errorf("%w: bad permission name in %q", ErrMalformedPolicy, policyName)
		}
		return ConditionalPermissionRequirement{Name: rest}, nil
	case "GroupMember":
		if rest == "" || strings.ContainsAny(rest, " :") {
			return nil, fmt.Errorf("%w: bad group id in %q", ErrMalformedPolicy, policyName)
		}
		return GroupMemberRequirement{GroupID: rest}, nil
	case "TimeWindow":
		start, end, ok := strings.Cut(rest, "-")
		if !ok || !validClock(start) || !validClock(end) {
			return nil, fmt.Errorf("%w: bad time window in %q", ErrMalformedPolicy, policyName)
		}
		return TimeWindowRequirement{Start: start, End: end}, nil
	case "Permissions", "OptimizedPermissions":
		names, mode, err := parseNameList(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v in %q", ErrMalformedPolicy, err, policyName)
		}
		if kind == "OptimizedPermissions" {
			return OptimizedMultiplePermissionsRequirement{Names: names, Mode: mode}, nil
		}
		return MultiplePermissionsRequirement{Names: names, Mode: mode}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind in %q", ErrMalformedPolicy, policyName)
}

// parseNameList splits "<name>[,<name>...]:<AND|OR>". The mode sits after the
// last colon because permission names contain the token delimiter themselves.
func parseNameList(rest string) ([]string, CheckMode, error) {
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return nil, "", fmt.Errorf("missing mode")
	}
	list, modeStr := rest[:i], rest[i+1:]
	var mode CheckMode
	switch modeStr {
	case string(ModeAll):
		mode = ModeAll
	case string(ModeAny):
		mode = ModeAny
	default:
		return nil, "", fmt.Errorf("mode must be AND or OR")
	}
	parts := strings.Split(list, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if !validPermissionName(part) {
			return nil, "", fmt.Errorf("bad permission name %q", part)
		}
		names = append(names, part)
	}
	if len(names) == 0 {
		return nil, "", fmt.Errorf("empty name list")
	}
	return names, mode, nil
}

// validPermissionName accepts the catalog's naming alphabet: delimiter-joined
// tokens of letters, digits, '.', '_', '-', plus wildcard tokens.
func validPermissionName(name string) bool {
	if name == "" {
		return false
	}
	for _, tok := range strings.Split(name, TokenDelimiter) {
		if tok == "" {
			return false
		}
		if tok == "*" || tok == "**" {
			continue
		}
		for _, r := range tok {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '.', r == '_', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

func validClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return h <= 23 && m <= 59
}
