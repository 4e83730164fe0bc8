package permission

import (
	"context"
	"fmt"
	"time"
)

// ============================================================================
// REQUIREMENTS
// ============================================================================

// Requirement is the closed set of authorization requirement variants. The
// Dynamic Policy Provider synthesizes these from policy-name strings at
// request time.
type Requirement interface {
	requirement()
	String() string
}

// PermissionRequirement asks for one permission name.
type PermissionRequirement struct {
	Name string
}

// MultiplePermissionsRequirement asks for several names combined per Mode.
type MultiplePermissionsRequirement struct {
	Names []string
	Mode  CheckMode
}

// OptimizedMultiplePermissionsRequirement is MultiplePermissionsRequirement
// answered through the batched plan.
type OptimizedMultiplePermissionsRequirement struct {
	Names []string
	Mode  CheckMode
}

// ResourceOwnerRequirement asks whether the caller owns the resource, per the
// ownerId attribute of the request's resource context.
type ResourceOwnerRequirement struct{}

// GroupMemberRequirement asks whether the caller's active group is GroupID.
type GroupMemberRequirement struct {
	GroupID string
}

// TimeWindowRequirement asks whether the check happens inside a daily window.
// Start and End are "HH:MM"; windows may wrap midnight; bounds are inclusive.
type TimeWindowRequirement struct {
	Start string
	End   string
}

// HierarchicalPermissionRequirement asks whether the name is implied by an
// ancestor grant carrying InheritsFromParent.
type HierarchicalPermissionRequirement struct {
	Name string
}

// ConditionalPermissionRequirement asks for a name that must be satisfied by
// a conditional grant specifically.
type ConditionalPermissionRequirement struct {
	Name string
}

// SuperAdminRequirement asks only for the super-admin flag.
type SuperAdminRequirement struct{}

func (PermissionRequirement) requirement()                   {}
func (MultiplePermissionsRequirement) requirement()          {}
func (OptimizedMultiplePermissionsRequirement) requirement() {}
func (ResourceOwnerRequirement) requirement()                {}
func (GroupMemberRequirement) requirement()                  {}
func (TimeWindowRequirement) requirement()                   {}
func (HierarchicalPermissionRequirement) requirement()       {}
func (ConditionalPermissionRequirement) requirement()        {}
func (SuperAdminRequirement) requirement()                   {}

func (r PermissionRequirement) String() string { return "permission:" + r.Name }
func (r MultiplePermissionsRequirement) String() string {
	return fmt.Sprintf("permissions:%v:%s", r.Names, r.Mode)
}
func (r OptimizedMultiplePermissionsRequirement) String() string {
	return fmt.Sprintf("permissions-batched:%v:%s", r.Names, r.Mode)
}
func (r ResourceOwnerRequirement) String() string { return "resource-owner" }
func (r GroupMemberRequirement) String() string   { return "group-member:" + r.GroupID }
func (r TimeWindowRequirement) String() string    { return "time-window:" + r.Start + "-" + r.End }
func (r HierarchicalPermissionRequirement) String() string {
	return "hierarchical:" + r.Name
}
func (r ConditionalPermissionRequirement) String() string { return "conditional:" + r.Name }
func (r SuperAdminRequirement) String() string            { return "super-admin" }

// ============================================================================
// HANDLER PIPELINE
// ============================================================================

// planSource builds the evaluation plan lazily so handlers that never touch
// the effective set (the super-admin bypass above all) do not hit the grant
// store. A planSource is request-scoped and not used concurrently.
type planSource struct {
	engine  *Engine
	subject *SubjectContext
	plan    *Plan
	err     error
	loaded  bool
}

func (ps *planSource) get(ctx context.Context) (*Plan, error) {
	if !ps.loaded {
		ps.plan, ps.err = ps.engine.BuildPlan(ctx, ps.subject)
		ps.loaded = true
	}
	return ps.plan, ps.err
}

// handler is one decision rule. Handlers abstain on requirements they do not
// recognize; the pipeline runs them in registration order, fail-fast.
type handler interface {
	name() string
	evaluate(ctx context.Context, req Requirement, subject *SubjectContext, ps *planSource) (Verdict, string, error)
}

// newPipeline returns the fixed handler ordering: bypass first, then the
// grant-set rules, then the contextual rules, conditionals last.
func newPipeline() []handler {
	return []handler{
		superAdminBypassHandler{},
		explicitPermissionHandler{},
		multiplePermissionsHandler{},
		resourceOwnerHandler{},
		groupMemberHandler{},
		timeBasedHandler{},
		hierarchicalHandler{},
		optimizedMultipleHandler{},
		conditionalHandler{},
	}
}

type superAdminBypassHandler struct{}

func (superAdminBypassHandler) name() string { return "super-admin-bypass" }

func (superAdminBypassHandler) evaluate(_ context.Context, _ Requirement, subject *SubjectContext, _ *planSource) (Verdict, string, error) {
	if subject.IsSuperAdmin {
		return VerdictSucceed, ReasonSuperAdmin, nil
	}
	return VerdictAbstain, "", nil
}

type explicitPermissionHandler struct{}

func (explicitPermissionHandler) name() string { return "explicit-permission" }

func (explicitPermissionHandler) evaluate(ctx context.Context, req Requirement, _ *SubjectContext, ps *planSource) (Verdict, string, error) {
	r, ok := req.(PermissionRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	plan, err := ps.get(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	if plan.set.Has(r.Name) {
		return VerdictSucceed, ReasonExplicitGrant, nil
	}
	// leave room for the conditional handler
	return VerdictAbstain, "", nil
}

type multiplePermissionsHandler struct{}

func (multiplePermissionsHandler) name() string { return "multiple-permissions" }

func (multiplePermissionsHandler) evaluate(ctx context.Context, req Requirement, _ *SubjectContext, ps *planSource) (Verdict, string, error) {
	r, ok := req.(MultiplePermissionsRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	plan, err := ps.get(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	// unbatched on purpose: one check per name, same verdict as N singles
	satisfied := 0
	for _, name := range r.Names {
		if plan.Check(name) {
			satisfied++
		}
	}
	if checkSatisfied(satisfied, len(r.Names), r.Mode) {
		return VerdictSucceed, ReasonMultipleGrants, nil
	}
	return VerdictAbstain, "", nil
}

type optimizedMultipleHandler struct{}

func (optimizedMultipleHandler) name() string { return "optimized-multiple-permissions" }

func (optimizedMultipleHandler) evaluate(ctx context.Context, req Requirement, _ *SubjectContext, ps *planSource) (Verdict, string, error) {
	r, ok := req.(OptimizedMultiplePermissionsRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	plan, err := ps.get(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	if plan.CheckAll(r.Names, r.Mode) {
		return VerdictSucceed, ReasonMultipleGrants, nil
	}
	return VerdictAbstain, "", nil
}

func checkSatisfied(satisfied, total int, mode CheckMode) bool {
	if total == 0 {
		return false
	}
	if mode == ModeAny {
		return satisfied > 0
	}
	return satisfied == total
}

type resourceOwnerHandler struct{}

func (resourceOwnerHandler) name() string { return "resource-owner" }

func (resourceOwnerHandler) evaluate(_ context.Context, req Requirement, subject *SubjectContext, _ *planSource) (Verdict, string, error) {
	if _, ok := req.(ResourceOwnerRequirement); !ok {
		return VerdictAbstain, "", nil
	}
	owner, ok := subject.ResourceContext["ownerId"].(string)
	if !ok || owner == "" || owner != subject.UserID {
		return VerdictFail, ReasonNotResourceOwner, nil
	}
	return VerdictSucceed, ReasonResourceOwner, nil
}

type groupMemberHandler struct{}

func (groupMemberHandler) name() string { return "group-member" }

func (groupMemberHandler) evaluate(_ context.Context, req Requirement, subject *SubjectContext, _ *planSource) (Verdict, string, error) {
	r, ok := req.(GroupMemberRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	if subject.ActiveGroupID != "" && subject.ActiveGroupID == r.GroupID {
		return VerdictSucceed, ReasonGroupMember, nil
	}
	return VerdictFail, ReasonNotGroupMember, nil
}

type timeBasedHandler struct{}

func (timeBasedHandler) name() string { return "time-based" }

func (timeBasedHandler) evaluate(ctx context.Context, req Requirement, _ *SubjectContext, ps *planSource) (Verdict, string, error) {
	r, ok := req.(TimeWindowRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	now := ps.engine.clock()
	inside, err := insideDailyWindow(now, r.Start, r.End)
	if err != nil {
		return VerdictFail, ReasonOutsideWindow, err
	}
	if inside {
		return VerdictSucceed, ReasonInsideWindow, nil
	}
	return VerdictFail, ReasonOutsideWindow, nil
}

// insideDailyWindow checks a wall-clock HH:MM window, inclusive on both ends,
// wrapping over midnight when start > end.
func insideDailyWindow(now time.Time, start, end string) (bool, error) {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return false, fmt.Errorf("time window start %q: %w", start, err)
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return false, fmt.Errorf("time window end %q: %w", end, err)
	}
	m := now.Hour()*60 + now.Minute()
	sm := s.Hour()*60 + s.Minute()
	em := e.Hour()*60 + e.Minute()
	if sm <= em {
		return m >= sm && m <= em, nil
	}
	return m >= sm || m <= em, nil
}

type hierarchicalHandler struct{}

func (hierarchicalHandler) name() string { return "hierarchical" }

func (hierarchicalHandler) evaluate(ctx context.Context, req Requirement, _ *SubjectContext, ps *planSource) (Verdict, string, error) {
	r, ok := req.(HierarchicalPermissionRequirement)
	if !ok {
		return VerdictAbstain, "", nil
	}
	plan, err := ps.get(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	cat, err := ps.engine.resolver.Catalog(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	// the nearest granted ancestor decides; its inheritance flag wins even
	// when a farther ancestor disagrees
	anc, err := cat.NearestGrantedAncestor(r.Name, func(p *Permission) bool {
		return plan.set.Has(p.Name)
	})
	if err != nil {
		ps.engine.log.Error("hierarchical check aborted", "permission", r.Name, "err", err.Error())
		return VerdictAbstain, "", nil
	}
	if anc != nil && anc.InheritsFromParent {
		return VerdictSucceed, ReasonAncestorGrant, nil
	}
	return VerdictAbstain, "", nil
}

type conditionalHandler struct{}

func (conditionalHandler) name() string { return "conditional-permission" }

func (conditionalHandler) evaluate(ctx context.Context, req Requirement, subject *SubjectContext, ps *planSource) (Verdict, string, error) {
	var name string
	switch r := req.(type) {
	case ConditionalPermissionRequirement:
		name = r.Name
	case PermissionRequirement:
		// a conditional grant satisfies a plain permission check too
		name = r.Name
	default:
		return VerdictAbstain, "", nil
	}
	plan, err := ps.get(ctx)
	if err != nil {
		return VerdictFail, ReasonStoreUnavailable, err
	}
	if plan.set.HasConditional(name, subject) {
		return VerdictSucceed, ReasonConditionalGrant, nil
	}
	return VerdictAbstain, "", nil
}
