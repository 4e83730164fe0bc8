package permission

import "context"

// ============================================================================
// QUERY OPTIMIZER
// ============================================================================

// Plan is one request's evaluation plan: the effective set resolved exactly
// once, answering any number of permission checks without re-querying. It is
// a pure read-side batching optimization; Check and CheckAll behave exactly
// like the equivalent sequence of single Authorize calls.
type Plan struct {
	subject *SubjectContext
	set     *EffectivePermissionSet
}

// BuildPlan resolves the subject's effective set through the cache.
func (e *Engine) BuildPlan(ctx context.Context, subject *SubjectContext) (*Plan, error) {
	set, err := e.cache.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &Plan{subject: subject, set: set}, nil
}

// Check reports whether a single permission name is granted under the plan,
// through an exact grant, a wildcard pattern or a satisfied conditional.
func (p *Plan) Check(name string) bool {
	if p == nil {
		return false
	}
	return p.set.Has(name) || p.set.HasConditional(name, p.subject)
}

// CheckAll evaluates every name under the plan and combines the results per
// mode: ModeAll requires all, ModeAny requires at least one. An empty name
// list denies in either mode.
func (p *Plan) CheckAll(names []string, mode CheckMode) bool {
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		granted := p.Check(name)
		if mode == ModeAny && granted {
			return true
		}
		if mode != ModeAny && !granted {
			return false
		}
	}
	return mode != ModeAny
}
