package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// WebhookEventStore is the idempotent inbox for push deliveries. Enqueue must
// resolve concurrent calls with the same delivery id to exactly one row.
type WebhookEventStore interface {
	Enqueue(ctx context.Context, in EnqueueWebhookInput) (EnqueueResult, error)
	Get(ctx context.Context, eventID string) (WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, message string) error
	PurgeProcessedOlderThan(ctx context.Context, age time.Duration) (int, error)
	ListQueued(ctx context.Context, createdBefore time.Time, limit int) ([]WebhookEvent, error)
}

// SyncStateStore persists per-resource reconciliation cursors. Save never
// moves a stored cursor backward.
type SyncStateStore interface {
	Get(ctx context.Context, resource ResourceKind) (SyncState, error)
	Save(ctx context.Context, in SaveSyncStateInput) (SyncState, error)
}

// CatalogStore applies snapshots with per-entity freshness: incoming data
// strictly older than the stored UpdatedAt is discarded.
type CatalogStore interface {
	UpsertCatalogSnapshot(ctx context.Context, in UpsertCatalogInput) (UpsertCatalogResult, error)
	DeleteProductByExternalID(ctx context.Context, externalID string, deletedAt time.Time) error
	DeleteCollectionByExternalID(ctx context.Context, externalID string, deletedAt time.Time) error
	PurgeDeletedOlderThan(ctx context.Context, age time.Duration) (int, error)
}

type CatalogSource interface {
	FetchPage(ctx context.Context, req CatalogPageRequest) (CatalogPage, error)
}

// TaskScheduler hands a stored webhook event to asynchronous processing.
type TaskScheduler interface {
	ScheduleWebhookEvent(ctx context.Context, eventID string) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// StoreProvider exposes the persistence collaborators of the pipeline.
type StoreProvider interface {
	WebhookEventStore() WebhookEventStore
	SyncStateStore() SyncStateStore
	CatalogStore() CatalogStore
	Locker() Locker
}
