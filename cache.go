package permission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/linguahub/permission/logger"
)

// InvalidationBroadcaster fans a cache invalidation out to peer processes
// (e.g. an API gateway's local permission cache). Delivery is at-least-once
// and receivers treat messages idempotently; the local cache does not depend
// on it for its own correctness.
type InvalidationBroadcaster interface {
	Publish(ctx context.Context, subjectID, groupID string) error
}

// CacheConfig sizes the ristretto store behind the cache service.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// DefaultCacheConfig matches a few thousand active subjects.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
		TTL:         5 * time.Minute,
	}
}

// CacheService caches one EffectivePermissionSet per (subject, group).
// Entries are immutable snapshots, so readers are lock-free and never observe
// a partially built set.
//
// Invalidation must be synchronous: once a revoke's Invalidate call returns,
// no subsequent Get may serve the old set. Ristretto applies writes through
// buffers, so instead of deleting entries the service versions its keys: each
// (subject, group) carries an epoch that Invalidate bumps atomically, making
// every cached entry under the old epoch unreachable before Invalidate
// returns. Orphaned entries age out through TTL and cost-based eviction.
// The TTL therefore only bounds how long a *newly granted* permission can
// take to appear, which is the tolerable direction of staleness.
type CacheService struct {
	resolver    *GrantResolver
	cache       *ristretto.Cache
	log         logger.Logger
	ttl         time.Duration
	globalEpoch atomic.Uint64
	epochs      sync.Map // "subject\x00group" -> *atomic.Uint64
}

// NewCacheService builds the cache over a resolver.
func NewCacheService(resolver *GrantResolver, cfg CacheConfig, log logger.Logger) (*CacheService, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("init permission cache: %w", err)
	}
	return &CacheService{
		resolver: resolver,
		cache:    rc,
		log:      log,
		ttl:      cfg.TTL,
	}, nil
}

// Get returns the effective set for the subject's active group, populating
// the cache on miss. Population runs under the request's context; on store
// error or cancellation the caller fails closed.
func (s *CacheService) Get(ctx context.Context, subject *SubjectContext) (*EffectivePermissionSet, error) {
	key := s.cacheKey(subject.UserID, subject.ActiveGroupID)
	if v, ok := s.cache.Get(key); ok {
		if set, ok := v.(*EffectivePermissionSet); ok {
			return set, nil
		}
	}
	set, err := s.resolver.Resolve(ctx, subject)
	if err != nil {
		return nil, err
	}
	// atomic publish: the set is immutable, Set either lands or is dropped
	s.cache.SetWithTTL(key, set, 1, s.ttl)
	return set, nil
}

// Invalidate drops cached sets for the subject. With a groupID only that
// group context is dropped; with an empty groupID every group context for the
// subject is. The bumped epoch is visible before this returns.
func (s *CacheService) Invalidate(subjectID, groupID string) {
	if groupID == "" {
		s.epoch(subjectID, subjectEpochKey).Add(1)
		return
	}
	s.epoch(subjectID, groupID).Add(1)
}

// InvalidateAll drops every cached set.
func (s *CacheService) InvalidateAll() {
	s.globalEpoch.Add(1)
}

// Close releases the underlying ristretto store.
func (s *CacheService) Close() {
	s.cache.Close()
}

// subjectEpochKey is the pseudo-group under which the subject-wide epoch
// lives; real group ids never collide with it.
const subjectEpochKey = "\x00*"

func (s *CacheService) epoch(subjectID, groupID string) *atomic.Uint64 {
	k := subjectID + "\x00" + groupID
	if v, ok := s.epochs.Load(k); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := s.epochs.LoadOrStore(k, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (s *CacheService) cacheKey(subjectID, groupID string) string {
	return fmt.Sprintf("%s\x00%s\x00%d.%d.%d",
		subjectID, groupID,
		s.globalEpoch.Load(),
		s.epoch(subjectID, subjectEpochKey).Load(),
		s.epoch(subjectID, groupID).Load(),
	)
}
