package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// CodeIndex caches GroupCode -> GroupID in Redis. Entries expire after the
// configured TTL; callers treat a miss as "ask the repository".
type CodeIndex struct {
	cache *Cache
	ttl   time.Duration
}

// NewCodeIndex creates a CodeIndex. A non-positive ttl falls back to
// TTLGroupCode.
func NewCodeIndex(cache *Cache, ttl time.Duration) *CodeIndex {
	if ttl <= 0 {
		ttl = TTLGroupCode
	}
	return &CodeIndex{cache: cache, ttl: ttl}
}

// Put implements group.CodeIndex.
func (i *CodeIndex) Put(ctx context.Context, code group.GroupCode, id shared.GroupID) error {
	if err := i.cache.SetString(ctx, GroupCodeKey(code.String()), id.String(), i.ttl); err != nil {
		return fmt.Errorf("code index put: %w", err)
	}
	return nil
}

// Lookup implements group.CodeIndex. A stored value that is not a valid
// group id counts as a miss.
func (i *CodeIndex) Lookup(ctx context.Context, code group.GroupCode) (shared.GroupID, bool, error) {
	val, err := i.cache.GetString(ctx, GroupCodeKey(code.String()))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("code index lookup: %w", err)
	}

	id, err := shared.ParseGroupID(val)
	if err != nil {
		return "", false, nil
	}
	return id, true, nil
}

// Remove implements group.CodeIndex.
func (i *CodeIndex) Remove(ctx context.Context, code group.GroupCode) error {
	if err := i.cache.Delete(ctx, GroupCodeKey(code.String())); err != nil {
		return fmt.Errorf("code index remove: %w", err)
	}
	return nil
}
