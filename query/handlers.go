package query

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
)

type SyncStateReader interface {
	Get(ctx context.Context, resource core.ResourceKind) (core.SyncState, error)
}

type WebhookEventReader interface {
	Get(ctx context.Context, eventID string) (core.WebhookEvent, error)
}

type GetSyncStateQuery struct {
	reader SyncStateReader
}

func NewGetSyncStateQuery(reader SyncStateReader) *GetSyncStateQuery {
	return &GetSyncStateQuery{reader: reader}
}

// Query returns the stored state. A kind that was never reconciled yields a
// NotFound error.
func (q *GetSyncStateQuery) Query(ctx context.Context, msg GetSyncStateMessage) (core.SyncState, error) {
	if q == nil || q.reader == nil {
		return core.SyncState{}, queryDependencyError("query: sync state reader is required")
	}
	kind, err := core.ParseResourceKind(string(msg.Resource))
	if err != nil {
		return core.SyncState{}, queryValidationError("resource", "unknown resource kind "+string(msg.Resource))
	}
	state, err := q.reader.Get(ctx, kind)
	if err != nil {
		if errors.Is(err, core.ErrSyncStateNotFound) {
			return core.SyncState{}, core.NotFoundError(err, "sync state not found", map[string]any{"resource": string(kind)})
		}
		return core.SyncState{}, err
	}
	return state, nil
}

type GetWebhookEventQuery struct {
	reader WebhookEventReader
}

func NewGetWebhookEventQuery(reader WebhookEventReader) *GetWebhookEventQuery {
	return &GetWebhookEventQuery{reader: reader}
}

func (q *GetWebhookEventQuery) Query(ctx context.Context, msg GetWebhookEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: webhook event reader is required")
	}
	eventID := strings.TrimSpace(msg.EventID)
	if eventID == "" {
		return core.WebhookEvent{}, queryValidationError("event_id", "event id is required")
	}
	event, err := q.reader.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, core.ErrEventNotFound) {
			return core.WebhookEvent{}, core.NotFoundError(err, "webhook event not found", map[string]any{"event_id": eventID})
		}
		return core.WebhookEvent{}, err
	}
	return event, nil
}
