package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultListQueuedLimit = 100

// WebhookEventStore is the bun-backed idempotent inbox. The unique index on
// delivery_id collapses concurrent enqueues of the same delivery to one row.
type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
	now  func() time.Time
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookEventStore) Enqueue(ctx context.Context, in core.EnqueueWebhookInput) (core.EnqueueResult, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.EnqueueResult{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	in.DeliveryID = strings.TrimSpace(in.DeliveryID)
	in.Topic = strings.TrimSpace(in.Topic)
	in.Shop = strings.TrimSpace(in.Shop)
	if in.DeliveryID == "" {
		return core.EnqueueResult{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	if in.Topic == "" {
		return core.EnqueueResult{}, fmt.Errorf("sqlstore: topic is required")
	}

	existing, err := s.findByDeliveryID(ctx, in.DeliveryID)
	if err != nil {
		return core.EnqueueResult{}, err
	}
	if existing != nil {
		return duplicateResult(existing), nil
	}

	record := newWebhookEventRecord(in, s.now())
	if _, err := s.repo.Create(ctx, record); err != nil {
		if !isUniqueViolation(err) {
			return core.EnqueueResult{}, err
		}
		existing, findErr := s.findByDeliveryID(ctx, in.DeliveryID)
		if findErr != nil {
			return core.EnqueueResult{}, findErr
		}
		if existing == nil {
			return core.EnqueueResult{}, err
		}
		return duplicateResult(existing), nil
	}
	return core.EnqueueResult{
		Created: true,
		EventID: record.ID,
		Status:  core.WebhookEventQueued,
	}, nil
}

func (s *WebhookEventStore) Get(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event id is required")
	}

	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookEvent{}, fmt.Errorf("sqlstore: event %q: %w", eventID, core.ErrEventNotFound)
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	return s.transition(ctx, eventID, core.WebhookEventProcessed, "")
}

func (s *WebhookEventStore) MarkFailed(ctx context.Context, eventID string, message string) error {
	return s.transition(ctx, eventID, core.WebhookEventFailed, strings.TrimSpace(message))
}

// transition settles a queued event. Settled events are left untouched.
func (s *WebhookEventStore) transition(
	ctx context.Context,
	eventID string,
	status core.WebhookEventStatus,
	message string,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	now := s.now()

	res, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", message).
		Set("processed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", eventID).
		Where("status = ?", string(core.WebhookEventQueued)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := res.RowsAffected(); affErr == nil && affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, eventID); err != nil {
		return err
	}
	return nil
}

func (s *WebhookEventStore) PurgeProcessedOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if age <= 0 {
		return 0, fmt.Errorf("sqlstore: purge age must be positive")
	}
	cutoff := s.now().Add(-age)

	res, err := s.db.NewDelete().
		Model((*webhookEventRecord)(nil)).
		Where("status = ?", string(core.WebhookEventProcessed)).
		Where("processed_at IS NOT NULL").
		Where("processed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *WebhookEventStore) ListQueued(ctx context.Context, createdBefore time.Time, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if limit <= 0 {
		limit = defaultListQueuedLimit
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("status", "=", string(core.WebhookEventQueued)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	}
	if !createdBefore.IsZero() {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<", createdBefore.UTC()))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WebhookEventStore) findByDeliveryID(ctx context.Context, deliveryID string) (*webhookEventRecord, error) {
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func duplicateResult(record *webhookEventRecord) core.EnqueueResult {
	return core.EnqueueResult{
		Created: false,
		EventID: record.ID,
		Status:  core.WebhookEventDuplicate,
	}
}
