package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const syncStateCacheKeyPrefix = "catalog-sync::sync_state::v1"

// CachedSyncStateStore reads sync state through a go-repository-cache
// service and evicts the entry on every Save.
type CachedSyncStateStore struct {
	base  core.SyncStateStore
	cache repositorycache.CacheService
}

func NewCachedSyncStateStore(
	base core.SyncStateStore,
	cacheService repositorycache.CacheService,
) (*CachedSyncStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base sync state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: sync state cache service is required")
	}
	return &CachedSyncStateStore{base: base, cache: cacheService}, nil
}

// SyncStateCacheKey returns catalog-sync::sync_state::v1::<resource>.
func SyncStateCacheKey(resource core.ResourceKind) (string, error) {
	kind, err := core.ParseResourceKind(string(resource))
	if err != nil {
		return "", err
	}
	return strings.Join([]string{syncStateCacheKeyPrefix, url.PathEscape(string(kind))}, "::"), nil
}

func (s *CachedSyncStateStore) Get(ctx context.Context, resource core.ResourceKind) (core.SyncState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: cached sync state store is not configured")
	}
	cacheKey, err := SyncStateCacheKey(resource)
	if err != nil {
		return core.SyncState{}, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.SyncState, error) {
		fetched, fetchErr := s.base.Get(ctx, resource)
		if fetchErr != nil {
			return core.SyncState{}, fetchErr
		}
		return cloneSyncState(fetched), nil
	})
	if err != nil {
		return core.SyncState{}, err
	}
	return cloneSyncState(state), nil
}

func (s *CachedSyncStateStore) Save(ctx context.Context, in core.SaveSyncStateInput) (core.SyncState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: cached sync state store is not configured")
	}
	cacheKey, err := SyncStateCacheKey(in.Resource)
	if err != nil {
		return core.SyncState{}, err
	}
	saved, err := s.base.Save(ctx, in)
	if err != nil {
		return core.SyncState{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.SyncState{}, err
	}
	return saved, nil
}

func cloneSyncState(state core.SyncState) core.SyncState {
	cloned := state
	cloned.Metadata = copyAnyMap(state.Metadata)
	cloned.LastRunAt = cloneTimePointer(state.LastRunAt)
	cloned.LastSuccessAt = cloneTimePointer(state.LastSuccessAt)
	return cloned
}

var _ core.SyncStateStore = (*CachedSyncStateStore)(nil)
