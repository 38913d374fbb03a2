package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLocker_ExclusiveUntilUnlock(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	handle, err := locker.Acquire(ctx, LeaseKey(ResourceProducts), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, LeaseKey(ResourceProducts), time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected lease held, got %v", err)
	}
	if _, err := locker.Acquire(ctx, LeaseKey(ResourceCollections), time.Minute); err != nil {
		t.Fatalf("expected independent key to be free: %v", err)
	}
	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, LeaseKey(ResourceProducts), time.Minute); err != nil {
		t.Fatalf("expected re-acquire after unlock: %v", err)
	}
}

func TestMemoryLocker_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker()
	locker.nowFn = func() time.Time { return now }

	stale, err := locker.Acquire(ctx, "reconcile:products", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, "reconcile:products", time.Minute)
	if err != nil {
		t.Fatalf("expected takeover of expired lease: %v", err)
	}

	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "reconcile:products", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("stale unlock must not release the new holder, got %v", err)
	}
	if err := fresh.Unlock(ctx); err != nil {
		t.Fatalf("fresh unlock: %v", err)
	}
}
