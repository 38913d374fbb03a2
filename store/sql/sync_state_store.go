package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SyncStateStore keeps one row per resource kind. Save merges the incoming
// cursor with the stored one so the cursor never moves backward.
type SyncStateStore struct {
	db   *bun.DB
	repo repository.Repository[*syncStateRecord]
	now  func() time.Time
}

func NewSyncStateStore(db *bun.DB) (*SyncStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncStateRecord](db, syncStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync state repository wiring: %w", err)
		}
	}
	return &SyncStateStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SyncStateStore) Get(ctx context.Context, resource core.ResourceKind) (core.SyncState, error) {
	if s == nil || s.repo == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	kind, err := core.ParseResourceKind(string(resource))
	if err != nil {
		return core.SyncState{}, err
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("resource", "=", string(kind)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SyncState{}, err
	}
	if len(records) == 0 {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state %q: %w", kind, core.ErrSyncStateNotFound)
	}
	return records[0].toDomain(), nil
}

func (s *SyncStateStore) Save(ctx context.Context, in core.SaveSyncStateInput) (core.SyncState, error) {
	if s == nil || s.db == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	kind, err := core.ParseResourceKind(string(in.Resource))
	if err != nil {
		return core.SyncState{}, err
	}
	cursor, err := core.NormalizeTimestamp(in.Cursor)
	if err != nil {
		return core.SyncState{}, core.ValidationError("invalid sync cursor", map[string]any{
			"resource": string(kind),
			"cursor":   in.Cursor,
		})
	}
	now := s.now()

	var out core.SyncState
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created := &syncStateRecord{
			ID:            uuid.NewString(),
			Resource:      string(kind),
			Cursor:        cursor,
			LastRunAt:     cloneTimePointer(in.LastRunAt),
			LastSuccessAt: cloneTimePointer(in.LastSuccessAt),
			Metadata:      copyAnyMap(in.Metadata),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		inserted, err := insertIfAbsent(ctx, tx.NewInsert().Model(created), "resource")
		if err != nil {
			return err
		}
		if inserted {
			out = created.toDomain()
			return nil
		}

		record := &syncStateRecord{}
		query := tx.NewSelect().
			Model(record).
			Where("?TableAlias.resource = ?", string(kind)).
			Limit(1)
		if err := forUpdate(tx, query).Scan(ctx); err != nil {
			return lockError("sync state", string(kind), err)
		}

		record.Cursor = core.MergeCursor(record.Cursor, cursor)
		if in.LastRunAt != nil {
			record.LastRunAt = cloneTimePointer(in.LastRunAt)
		}
		if in.LastSuccessAt != nil {
			record.LastSuccessAt = cloneTimePointer(in.LastSuccessAt)
		}
		if in.Metadata != nil {
			record.Metadata = copyAnyMap(in.Metadata)
		}
		if record.Metadata == nil {
			record.Metadata = map[string]any{}
		}
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.SyncState{}, err
	}
	return out, nil
}
