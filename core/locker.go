package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const DefaultLeaseTTL = 15 * time.Minute

// LeaseKey names the lease guarding one resource kind's reconciliation walk.
func LeaseKey(resource ResourceKind) string {
	return "reconcile:" + string(resource)
}

// MemoryLocker is a process-local Locker. Expired leases may be taken over.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
	nowFn func() time.Time
	seq   uint64
}

type memoryLease struct {
	until time.Time
	token uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLease),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && now.Before(held.until) {
		return nil, fmt.Errorf("core: lock %q: %w", key, ErrLeaseHeld)
	}
	l.seq++
	l.locks[key] = memoryLease{until: now.Add(ttl), token: l.seq}
	return &memoryLockHandle{locker: l, key: key, token: l.seq}, nil
}

type memoryLockHandle struct {
	locker *MemoryLocker
	key    string
	token  uint64
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		if held, ok := h.locker.locks[h.key]; ok && held.token == h.token {
			delete(h.locker.locks, h.key)
		}
	})
	return nil
}
