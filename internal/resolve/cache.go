package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openshelf/authz/internal/catalog"
)

// Cache stores computed effective-permission sets in Redis, stamped
// with the per-principal version counter that was current when the
// computation began. Mutations bump the counter; reads reject any
// entry whose stamp no longer matches, so a slow computation that
// finishes after a mutation cannot resurface the pre-mutation set.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(principalID int64) string {
	return fmt.Sprintf("authz:effective:ver:%d", principalID)
}

func entryKey(principalID int64, role catalog.Role) string {
	return fmt.Sprintf("authz:effective:%d:%s", principalID, role)
}

// cacheEntry is the stored representation. Version records the counter
// value observed before the effective set was computed.
type cacheEntry struct {
	Version int64    `json:"version"`
	Codes   []string `json:"codes"`
}

// Version returns the principal's current cache version, initialising
// it when missing. Callers capture it once, before touching the store,
// and pass the same value to Get and Set.
func (c *Cache) Version(ctx context.Context, principalID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(principalID)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(principalID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Get loads the cached effective set, reporting a miss when absent or
// when the entry was computed under an older version.
func (c *Cache) Get(ctx context.Context, principalID int64, role catalog.Role, version int64) ([]string, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, entryKey(principalID, role)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}
	if entry.Version != version {
		return nil, false, nil
	}
	return entry.Codes, true, nil
}

// Set stores the effective set stamped with the version the caller
// captured before computing it. If a mutation bumped the counter in
// the meantime the entry lands with a stale stamp and every subsequent
// Get rejects it; no check-then-write race exists.
func (c *Cache) Set(ctx context.Context, principalID int64, role catalog.Role, version int64, codes []string) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cacheEntry{Version: version, Codes: codes})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(principalID, role), raw, c.ttl).Err()
}

// Invalidate bumps the principal's version so subsequent resolutions
// recompute. Called synchronously from the mutation path, which is
// what gives the mutating session read-your-writes.
func (c *Cache) Invalidate(ctx context.Context, principalID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(principalID)).Err()
}
