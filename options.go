package permission

import (
	"time"

	"github.com/linguahub/permission/logger"
)

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

// WithLogger installs a structured logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithClock injects the time source, used by validity-window filtering and
// time-window requirements. Tests pin it.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.clock = clock
		return nil
	}
}

// WithCacheConfig sizes the effective-set cache. The TTL bounds only how long
// a newly granted permission may take to become visible; revokes are exact.
func WithCacheConfig(cfg CacheConfig) EngineOption {
	return func(e *Engine) error {
		e.cacheCfg = cfg
		return nil
	}
}

// WithAuditSink installs a decision sink, fed asynchronously.
func WithAuditSink(sink AuditSink) EngineOption {
	return func(e *Engine) error {
		e.audit = sink
		return nil
	}
}

// WithAuditBuffer sizes the async audit channel.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		if n > 0 {
			e.auditBuffer = n
		}
		return nil
	}
}

// WithBroadcaster installs the cross-process invalidation broadcaster.
func WithBroadcaster(b InvalidationBroadcaster) EngineOption {
	return func(e *Engine) error {
		e.broadcaster = b
		return nil
	}
}
