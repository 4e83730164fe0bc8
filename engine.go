package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linguahub/permission/logger"
)

// ============================================================================
// AUTHORIZATION ENGINE
// ============================================================================

// Engine is the authorization decision engine: grant resolution, hierarchy
// expansion, wildcard matching, conditional predicates, the effective-set
// cache and the handler pipeline, behind Authorize/CheckAll.
type Engine struct {
	resolver    *GrantResolver
	cache       *CacheService
	pipeline    []handler
	provider    *PolicyProvider
	broadcaster InvalidationBroadcaster
	log         logger.Logger
	clock       func() time.Time

	audit       AuditSink
	auditCh     chan AuditEntry
	auditBuffer int
	auditWG     sync.WaitGroup

	cacheCfg CacheConfig
}

// NewEngine wires an engine over a grant store.
func NewEngine(store GrantStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		log:         logger.NewNullLogger(),
		clock:       time.Now,
		cacheCfg:    DefaultCacheConfig(),
		auditBuffer: 1024,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.resolver = NewGrantResolver(store, e.log, e.clock)
	cache, err := NewCacheService(e.resolver, e.cacheCfg, e.log)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	e.pipeline = newPipeline()
	e.provider = NewPolicyProvider(e.log)
	if e.audit != nil {
		e.auditCh = make(chan AuditEntry, e.auditBuffer)
		e.startAuditWorker()
	}
	return e, nil
}

// Close stops the audit worker and releases the cache.
func (e *Engine) Close() {
	if e.auditCh != nil {
		close(e.auditCh)
		e.auditWG.Wait()
	}
	e.cache.Close()
}

// Authorize runs the handler pipeline for one requirement. Handlers are
// evaluated in registration order; the first Succeed allows, the first Fail
// denies and aborts the remaining handlers, and all-Abstain denies by
// default. A transient store failure denies with ReasonStoreUnavailable and
// a non-nil error so callers can distinguish it from a genuine denial.
func (e *Engine) Authorize(ctx context.Context, subject *SubjectContext, req Requirement) (*Decision, error) {
	return e.authorize(ctx, subject, req, false)
}

// Explain is Authorize with a per-handler trace, for debugging denials.
func (e *Engine) Explain(ctx context.Context, subject *SubjectContext, req Requirement) (*Decision, error) {
	return e.authorize(ctx, subject, req, true)
}

func (e *Engine) authorize(ctx context.Context, subject *SubjectContext, req Requirement, withTrace bool) (*Decision, error) {
	dec := &Decision{Timestamp: e.clock()}
	if withTrace {
		dec.Trace = make([]string, 0, len(e.pipeline))
	}
	ps := &planSource{engine: e, subject: subject}

	for _, h := range e.pipeline {
		verdict, reason, err := h.evaluate(ctx, req, subject, ps)
		if withTrace {
			dec.Trace = append(dec.Trace, fmt.Sprintf("%s: %s", h.name(), verdict))
		}
		switch verdict {
		case VerdictSucceed:
			dec.Allowed = true
			dec.Reason = reason
			dec.Handler = h.name()
			e.recordDecision(subject, req, dec)
			return dec, nil
		case VerdictFail:
			dec.Reason = reason
			dec.Handler = h.name()
			e.recordDecision(subject, req, dec)
			if err != nil && errors.Is(err, ErrStoreUnavailable) {
				return dec, err
			}
			return dec, nil
		}
	}

	// no handler claimed the requirement: default deny, expected for
	// resources with no matching rule
	dec.Reason = ReasonDefaultDeny
	e.log.Debug("no applicable handler", "requirement", req.String(), "subject", subject.UserID)
	e.recordDecision(subject, req, dec)
	return dec, nil
}

// AuthorizePolicy parses a dynamic policy name and authorizes against it.
// A malformed name is a configuration error and denies without consulting
// the grant store.
func (e *Engine) AuthorizePolicy(ctx context.Context, subject *SubjectContext, policyName string) (*Decision, error) {
	req, err := e.provider.Parse(policyName)
	if err != nil {
		return &Decision{
			Allowed:   false,
			Reason:    ReasonMalformedPolicy,
			Timestamp: e.clock(),
		}, nil
	}
	return e.Authorize(ctx, subject, req)
}

// CheckAll answers a multi-permission check against a single evaluation plan.
// The result equals combining Authorize per name with the given mode.
func (e *Engine) CheckAll(ctx context.Context, subject *SubjectContext, names []string, mode CheckMode) (bool, error) {
	if subject.IsSuperAdmin {
		return len(names) > 0, nil
	}
	plan, err := e.BuildPlan(ctx, subject)
	if err != nil {
		return false, err
	}
	return plan.CheckAll(names, mode), nil
}

// Invalidate drops the subject's cached effective sets locally and broadcasts
// the invalidation to peer caches. The local drop is synchronous: a write
// path that calls Invalidate before acknowledging its caller gets the
// no-stale-revoke guarantee.
func (e *Engine) Invalidate(ctx context.Context, subjectID, groupID string) {
	e.cache.Invalidate(subjectID, groupID)
	if e.broadcaster != nil {
		if err := e.broadcaster.Publish(ctx, subjectID, groupID); err != nil {
			e.log.Error("invalidation broadcast failed",
				"subject", subjectID, "group", groupID, "err", err.Error())
		}
	}
}

// InvalidateAll drops every cached effective set, e.g. after a catalog edit.
func (e *Engine) InvalidateAll() {
	e.cache.InvalidateAll()
}

// ReloadCatalog refreshes the permission forest snapshot and flushes the
// cache, since closures may have changed shape.
func (e *Engine) ReloadCatalog(ctx context.Context) error {
	if _, err := e.resolver.ReloadCatalog(ctx); err != nil {
		return err
	}
	e.cache.InvalidateAll()
	return nil
}

// Cache exposes the cache service, mainly for wiring a broadcaster's
// subscribe side to local invalidation.
func (e *Engine) Cache() *CacheService { return e.cache }

// EffectivePermissions lists the subject's unconditional permission names,
// for diagnostics and admin tooling.
func (e *Engine) EffectivePermissions(ctx context.Context, subject *SubjectContext) ([]string, error) {
	set, err := e.cache.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	return set.Names(), nil
}
