package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LeaseStore is a core.Locker backed by the catalog_sync_leases table so that
// reconciliation runs exclude each other across processes.
type LeaseStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewLeaseStore(db *bun.DB) (*LeaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LeaseStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *LeaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: lease store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: lease key is required")
	}
	if ttl <= 0 {
		ttl = core.DefaultLeaseTTL
	}
	now := s.now()
	owner := uuid.NewString()
	record := &leaseRecord{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &leaseRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.lease_key = ?", key).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return core.ErrLeaseHeld
				}
				return insertErr
			}
			return nil
		}
		if err != nil {
			return err
		}
		if current.ExpiresAt.After(now) {
			return core.ErrLeaseHeld
		}

		res, err := tx.NewUpdate().
			Model((*leaseRecord)(nil)).
			Set("owner = ?", owner).
			Set("expires_at = ?", record.ExpiresAt).
			Set("updated_at = ?", now).
			Where("lease_key = ?", key).
			Where("owner = ?", current.Owner).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, affErr := res.RowsAffected(); affErr == nil && affected == 0 {
			return core.ErrLeaseHeld
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrLeaseHeld) {
			return nil, fmt.Errorf("sqlstore: lease %q: %w", key, core.ErrLeaseHeld)
		}
		return nil, err
	}
	return &leaseHandle{store: s, key: key, owner: owner}, nil
}

type leaseHandle struct {
	store *LeaseStore
	key   string
	owner string
}

// Unlock releases the lease if this handle still owns it.
func (h *leaseHandle) Unlock(ctx context.Context) error {
	if h == nil || h.store == nil || h.store.db == nil {
		return nil
	}
	_, err := h.store.db.NewDelete().
		Model((*leaseRecord)(nil)).
		Where("lease_key = ?", h.key).
		Where("owner = ?", h.owner).
		Exec(ctx)
	return err
}
