package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/openshelf/authz/internal/catalog"
)

// Resolver fronts the engine with the Redis cache and collapses
// concurrent recomputations of the same (principal, role) key.
type Resolver struct {
	engine *Engine
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(engine *Engine, cache *Cache, logger *slog.Logger) *Resolver {
	return &Resolver{engine: engine, cache: cache, logger: logger}
}

// EffectiveCodes returns the sorted effective permission codes, served
// from cache when fresh. The cache version is read once up front and
// threaded through the whole lookup: it forms part of the singleflight
// key, so a read issued after a mutation's version bump never joins a
// computation started before it, and it stamps the cache write, so a
// stale computation can never be served under the new version. Cache
// failures degrade to a direct compute: the engine, not the cache, is
// the source of truth.
func (r *Resolver) EffectiveCodes(ctx context.Context, principalID int64, role catalog.Role) ([]string, error) {
	version, err := r.cache.Version(ctx, principalID)
	if err != nil {
		r.warn("resolution cache version", principalID, err)
		return r.engine.EffectiveCodes(ctx, principalID, role)
	}
	key := fmt.Sprintf("%d:%s:%d", principalID, role, version)
	resultChan := r.group.DoChan(key, func() (interface{}, error) {
		return r.lookup(ctx, principalID, role, version)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func (r *Resolver) lookup(ctx context.Context, principalID int64, role catalog.Role, version int64) ([]string, error) {
	codes, hit, err := r.cache.Get(ctx, principalID, role, version)
	if err != nil {
		r.warn("resolution cache read", principalID, err)
	} else if hit {
		return codes, nil
	}

	codes, err = r.engine.EffectiveCodes(ctx, principalID, role)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, principalID, role, version, codes); err != nil {
		r.warn("resolution cache write", principalID, err)
	}
	return codes, nil
}

// HasPermission answers a single-permission check. Point queries skip
// the cache and use the engine's short-circuit path directly.
func (r *Resolver) HasPermission(ctx context.Context, principalID int64, role catalog.Role, code string) (bool, error) {
	return r.engine.HasPermission(ctx, principalID, role, code)
}

func (r *Resolver) warn(msg string, principalID int64, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, slog.Int64("principal_id", principalID), slog.Any("error", err))
	}
}
