package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubSyncStateStore struct {
	mu        sync.Mutex
	states    map[core.ResourceKind]core.SyncState
	getCalls  int
	saveCalls int
	getErr    error
}

func (s *stubSyncStateStore) Get(_ context.Context, resource core.ResourceKind) (core.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.SyncState{}, s.getErr
	}
	state, ok := s.states[resource]
	if !ok {
		return core.SyncState{}, core.ErrSyncStateNotFound
	}
	return cloneSyncState(state), nil
}

func (s *stubSyncStateStore) Save(_ context.Context, in core.SaveSyncStateInput) (core.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.states == nil {
		s.states = map[core.ResourceKind]core.SyncState{}
	}
	current := s.states[in.Resource]
	current.Resource = in.Resource
	current.Cursor = core.MergeCursor(current.Cursor, in.Cursor)
	s.states[in.Resource] = current
	return cloneSyncState(current), nil
}

func TestCachedSyncStateStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubSyncStateStore{states: map[core.ResourceKind]core.SyncState{
		core.ResourceProducts: {
			Resource: core.ResourceProducts,
			Cursor:   "2025-01-02T00:00:00.000Z",
			Metadata: map[string]any{"source": "base"},
		},
	}}
	store, err := NewCachedSyncStateStore(base, newTestSyncStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached sync state store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, core.ResourceProducts); err != nil {
		t.Fatalf("first get: %v", err)
	}
	state, err := store.Get(ctx, core.ResourceProducts)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
	if state.Cursor != "2025-01-02T00:00:00.000Z" {
		t.Fatalf("unexpected cursor %q", state.Cursor)
	}
}

func TestCachedSyncStateStore_Save_EvictsCachedEntry(t *testing.T) {
	base := &stubSyncStateStore{states: map[core.ResourceKind]core.SyncState{
		core.ResourceCollections: {Resource: core.ResourceCollections, Cursor: "2025-01-02T00:00:00.000Z"},
	}}
	store, err := NewCachedSyncStateStore(base, newTestSyncStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached sync state store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, core.ResourceCollections); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := store.Save(ctx, core.SaveSyncStateInput{
		Resource: core.ResourceCollections,
		Cursor:   "2025-01-05T00:00:00.000Z",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	state, err := store.Get(ctx, core.ResourceCollections)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected save to evict cache entry, base get calls=%d", base.getCalls)
	}
	if state.Cursor != "2025-01-05T00:00:00.000Z" {
		t.Fatalf("expected refreshed cursor, got %q", state.Cursor)
	}
}

func TestCachedSyncStateStore_Get_PropagatesNotFound(t *testing.T) {
	store, err := NewCachedSyncStateStore(&stubSyncStateStore{}, newTestSyncStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached sync state store: %v", err)
	}
	_, err = store.Get(context.Background(), core.ResourceProducts)
	if !errors.Is(err, core.ErrSyncStateNotFound) {
		t.Fatalf("expected not found propagation, got %v", err)
	}
}

func TestSyncStateCacheKey_RejectsUnknownResource(t *testing.T) {
	if _, err := SyncStateCacheKey("orders"); !errors.Is(err, core.ErrInvalidResource) {
		t.Fatalf("expected invalid resource error, got %v", err)
	}
	key, err := SyncStateCacheKey(core.ResourceProducts)
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "catalog-sync::sync_state::v1::products" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func newTestSyncStateCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
