package resolve

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/override"
)

func newTestResolver(t *testing.T, now time.Time) (*Resolver, *Cache, *stubSource, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	source := &stubSource{overrides: make(map[int64][]override.Override)}
	engine := NewEngine(catalog.New(), source)
	engine.now = func() time.Time { return now }

	resolver := NewResolver(engine, cache, slog.Default())
	return resolver, cache, source, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestResolverCachesComputedSets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver, _, source, cleanup := newTestResolver(t, now)
	defer cleanup()
	ctx := context.Background()

	first, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, 1, source.listCalls)
	require.Contains(t, first, "books.view")

	second, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, source.listCalls, "second resolution should hit the cache")
}

func TestInvalidateGivesReadYourWrites(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver, cache, source, cleanup := newTestResolver(t, now)
	defer cleanup()
	ctx := context.Background()

	before, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.NotContains(t, before, "reports.export")

	// The mutation path: write the override, then bump the version.
	source.add(override.Override{PrincipalID: 42, PermissionCode: "reports.export", Type: override.TypeGrant})
	require.NoError(t, cache.Invalidate(ctx, 42))

	after, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Contains(t, after, "reports.export")
}

func TestInvalidateIsPerPrincipal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver, cache, source, cleanup := newTestResolver(t, now)
	defer cleanup()
	ctx := context.Background()

	_, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	_, err = resolver.EffectiveCodes(ctx, 99, catalog.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, 2, source.listCalls)

	require.NoError(t, cache.Invalidate(ctx, 42))

	_, err = resolver.EffectiveCodes(ctx, 99, catalog.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, 2, source.listCalls, "principal 99 should still be cached")

	_, err = resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, 3, source.listCalls, "principal 42 should recompute")
}

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() {
		_ = client.Close()
		mr.Close()
	}()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx, 42)
	require.NoError(t, err)

	_, hit, err := cache.Get(ctx, 42, catalog.RoleStaff, ver)
	require.NoError(t, err)
	require.False(t, hit)

	codes := []string{"books.view", "loans.view"}
	require.NoError(t, cache.Set(ctx, 42, catalog.RoleStaff, ver, codes))

	got, hit, err := cache.Get(ctx, 42, catalog.RoleStaff, ver)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, codes, got)
}

func TestCacheRejectsWriteStampedBeforeInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() {
		_ = client.Close()
		mr.Close()
	}()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	// A computation captures the version, then a mutation bumps it
	// before the computation's write lands.
	staleVer, err := cache.Version(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 42))
	require.NoError(t, cache.Set(ctx, 42, catalog.RoleStaff, staleVer, []string{"books.view"}))

	curVer, err := cache.Version(ctx, 42)
	require.NoError(t, err)
	require.NotEqual(t, staleVer, curVer)

	_, hit, err := cache.Get(ctx, 42, catalog.RoleStaff, curVer)
	require.NoError(t, err)
	require.False(t, hit, "an entry stamped before the bump must not be served")
}

func TestResolverIgnoresLateStaleWrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver, cache, source, cleanup := newTestResolver(t, now)
	defer cleanup()
	ctx := context.Background()

	before, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.NotContains(t, before, "reports.export")
	staleVer, err := cache.Version(ctx, 42)
	require.NoError(t, err)

	// The mutation path runs: write the override, bump the version.
	source.add(override.Override{PrincipalID: 42, PermissionCode: "reports.export", Type: override.TypeGrant})
	require.NoError(t, cache.Invalidate(ctx, 42))

	// A resolution that started before the mutation finishes now and
	// writes the pre-mutation set it computed.
	require.NoError(t, cache.Set(ctx, 42, catalog.RoleStaff, staleVer, before))

	after, err := resolver.EffectiveCodes(ctx, 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Contains(t, after, "reports.export", "late stale write must not mask the mutation")
}

func TestResolverDegradesWithoutRedis(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &stubSource{overrides: make(map[int64][]override.Override)}
	engine := NewEngine(catalog.New(), source)
	engine.now = func() time.Time { return now }
	resolver := NewResolver(engine, NewCache(nil, time.Minute), slog.Default())

	codes, err := resolver.EffectiveCodes(context.Background(), 42, catalog.RoleStaff)
	require.NoError(t, err)
	require.Contains(t, codes, "books.view")
}
