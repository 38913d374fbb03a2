package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
)

const testSecret = "shh"

func testHeaders() HeaderSet {
	return HeaderSet{
		Signature:   "X-Shopify-Hmac-Sha256",
		Topic:       "X-Shopify-Topic",
		Shop:        "X-Shopify-Shop-Domain",
		DeliveryID:  []string{"X-Shopify-Webhook-Id", "X-Shopify-Event-Id"},
		TriggeredAt: "X-Shopify-Triggered-At",
	}
}

func signedRequest(body string, topic string, deliveryID string) InboundRequest {
	return InboundRequest{
		Headers: map[string]string{
			"X-Shopify-Hmac-Sha256": Digest([]byte(body), testSecret),
			"X-Shopify-Topic":       topic,
			"X-Shopify-Shop-Domain": "acme.myshopify.com",
			"X-Shopify-Webhook-Id":  deliveryID,
		},
		Body: []byte(body),
	}
}

type memoryEventStore struct {
	mu      sync.Mutex
	seq     int
	events  map[string]core.WebhookEvent
	byID    map[string]string
	failGet error
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{
		events: map[string]core.WebhookEvent{},
		byID:   map[string]string{},
	}
}

func (s *memoryEventStore) Enqueue(_ context.Context, in core.EnqueueWebhookInput) (core.EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[in.DeliveryID]; ok {
		return core.EnqueueResult{Created: false, EventID: existing, Status: s.events[existing].Status}, nil
	}
	s.seq++
	id := fmt.Sprintf("evt_%d", s.seq)
	s.events[id] = core.WebhookEvent{
		ID:          id,
		DeliveryID:  in.DeliveryID,
		Topic:       in.Topic,
		Shop:        in.Shop,
		TriggeredAt: in.TriggeredAt,
		Payload:     append([]byte(nil), in.Payload...),
		ContentHash: in.ContentHash,
		Status:      core.WebhookEventQueued,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.byID[in.DeliveryID] = id
	return core.EnqueueResult{Created: true, EventID: id, Status: core.WebhookEventQueued}, nil
}

func (s *memoryEventStore) Get(_ context.Context, eventID string) (core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return core.WebhookEvent{}, s.failGet
	}
	event, ok := s.events[eventID]
	if !ok {
		return core.WebhookEvent{}, core.ErrEventNotFound
	}
	return event, nil
}

func (s *memoryEventStore) settle(eventID string, status core.WebhookEventStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return core.ErrEventNotFound
	}
	if event.Status != core.WebhookEventQueued {
		return nil
	}
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	event.Status = status
	event.Error = message
	event.ProcessedAt = &now
	s.events[eventID] = event
	return nil
}

func (s *memoryEventStore) MarkProcessed(_ context.Context, eventID string) error {
	return s.settle(eventID, core.WebhookEventProcessed, "")
}

func (s *memoryEventStore) MarkFailed(_ context.Context, eventID string, message string) error {
	return s.settle(eventID, core.WebhookEventFailed, message)
}

func (s *memoryEventStore) PurgeProcessedOlderThan(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (s *memoryEventStore) ListQueued(_ context.Context, createdBefore time.Time, limit int) ([]core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.WebhookEvent{}
	for _, event := range s.events {
		if event.Status == core.WebhookEventQueued && event.CreatedAt.Before(createdBefore) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memoryEventStore) event(id string) core.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

type recordingCatalog struct {
	mu         sync.Mutex
	upserts    []core.UpsertCatalogInput
	deletes    []string
	deletedAt  []time.Time
	failUpsert error
}

func (c *recordingCatalog) UpsertCatalogSnapshot(_ context.Context, in core.UpsertCatalogInput) (core.UpsertCatalogResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpsert != nil {
		return core.UpsertCatalogResult{}, c.failUpsert
	}
	c.upserts = append(c.upserts, in)
	result := core.UpsertCatalogResult{
		ProductsUpserted:    len(in.Products),
		CollectionsUpserted: len(in.Collections),
	}
	for _, product := range in.Products {
		result.VariantsUpserted += len(product.Variants)
	}
	return result, nil
}

func (c *recordingCatalog) DeleteProductByExternalID(_ context.Context, externalID string, deletedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, externalID)
	c.deletedAt = append(c.deletedAt, deletedAt)
	return nil
}

func (c *recordingCatalog) DeleteCollectionByExternalID(_ context.Context, externalID string, deletedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, externalID)
	c.deletedAt = append(c.deletedAt, deletedAt)
	return nil
}

func (c *recordingCatalog) PurgeDeletedOlderThan(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (c *recordingCatalog) upsertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.upserts)
}

type recordingScheduler struct {
	mu         sync.Mutex
	scheduled  []string
	err        error
	onSchedule func(ctx context.Context, eventID string)
}

func (s *recordingScheduler) ScheduleWebhookEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.scheduled = append(s.scheduled, eventID)
	hook := s.onSchedule
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, eventID)
	}
	return nil
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

var errBoom = errors.New("boom")

var (
	_ core.WebhookEventStore = (*memoryEventStore)(nil)
	_ core.CatalogStore      = (*recordingCatalog)(nil)
	_ core.TaskScheduler     = (*recordingScheduler)(nil)
)
