package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/mapping"
)

func enqueueTestEvent(t *testing.T, events *memoryEventStore, topic string, body string, triggeredAt *time.Time) string {
	t.Helper()
	result, err := events.Enqueue(context.Background(), core.EnqueueWebhookInput{
		DeliveryID:  topic + ":" + body,
		Topic:       topic,
		Shop:        "acme.myshopify.com",
		TriggeredAt: triggeredAt,
		Payload:     []byte(body),
		ContentHash: ContentHash([]byte(body)),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return result.EventID
}

func TestProcessor_ProductUpdateUpsertsAndMarksProcessed(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{}
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"))
	id := enqueueTestEvent(t, events, "products/update", `{"id":123,"updated_at":"2025-01-02T00:00:00Z","variants":[{"id":1,"price":"5.00"}]}`, nil)

	result, err := processor.Process(context.Background(), id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeProcessed || result.Upsert.VariantsUpserted != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
	if catalog.upsertCount() != 1 {
		t.Fatalf("expected one upsert, got %d", catalog.upsertCount())
	}
	call := catalog.upserts[0]
	if !call.ReplaceVariants || call.ReplaceAssociations {
		t.Fatalf("single product update must replace variants only, got %#v", call)
	}
	if call.Source != core.UpsertSourceWebhook || call.Products[0].ExternalID != "gid://shopify/Product/123" {
		t.Fatalf("unexpected upsert input %#v", call)
	}
	if events.event(id).Status != core.WebhookEventProcessed {
		t.Fatalf("expected processed status")
	}
}

func TestProcessor_IsIdempotent(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{}
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"))
	id := enqueueTestEvent(t, events, "collections/update", `{"id":4,"updated_at":"2025-01-02T00:00:00Z"}`, nil)

	if _, err := processor.Process(context.Background(), id); err != nil {
		t.Fatalf("first process: %v", err)
	}
	result, err := processor.Process(context.Background(), id)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("expected skip on reprocessing, got %q", result.Outcome)
	}
	if catalog.upsertCount() != 1 {
		t.Fatalf("expected a single upsert, got %d", catalog.upsertCount())
	}

	missing, err := processor.Process(context.Background(), "evt_missing")
	if err != nil || missing.Outcome != OutcomeSkipped {
		t.Fatalf("expected missing event to be skipped, got %#v err=%v", missing, err)
	}
}

func TestProcessor_InvalidPayloadMarksFailed(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{}
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"))
	id := enqueueTestEvent(t, events, "products/update", `{"id":`, nil)

	result, err := processor.Process(context.Background(), id)
	if err != nil {
		t.Fatalf("mapping failures must not be returned: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", result.Outcome)
	}
	stored := events.event(id)
	if stored.Status != core.WebhookEventFailed || stored.Error == "" {
		t.Fatalf("expected failed status with message, got %#v", stored)
	}
	if catalog.upsertCount() != 0 {
		t.Fatalf("expected no catalog mutation")
	}
}

func TestProcessor_UpsertFailureMarksFailed(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{failUpsert: errBoom}
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"))
	id := enqueueTestEvent(t, events, "products/create", `{"id":1,"updated_at":"2025-01-02T00:00:00Z"}`, nil)

	if _, err := processor.Process(context.Background(), id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if events.event(id).Status != core.WebhookEventFailed {
		t.Fatalf("expected failed status")
	}
}

func TestProcessor_DeleteUsesTriggeredAtOrNow(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{}
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"), WithProcessorClock(func() time.Time { return now }))

	triggered := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	withTrigger := enqueueTestEvent(t, events, "products/delete", `{"id":55}`, &triggered)
	withoutTrigger := enqueueTestEvent(t, events, "collections/delete", `{"id":66}`, nil)

	for _, id := range []string{withTrigger, withoutTrigger} {
		if _, err := processor.Process(context.Background(), id); err != nil {
			t.Fatalf("process %s: %v", id, err)
		}
	}
	if len(catalog.deletes) != 2 {
		t.Fatalf("expected two deletes, got %#v", catalog.deletes)
	}
	if catalog.deletes[0] != "gid://shopify/Product/55" || !catalog.deletedAt[0].Equal(triggered) {
		t.Fatalf("unexpected product delete %s at %s", catalog.deletes[0], catalog.deletedAt[0])
	}
	if catalog.deletes[1] != "gid://shopify/Collection/66" || !catalog.deletedAt[1].Equal(now) {
		t.Fatalf("unexpected collection delete %s at %s", catalog.deletes[1], catalog.deletedAt[1])
	}
}

func TestProcessor_UnknownTopicIsSuccessfulNoop(t *testing.T) {
	events := newMemoryEventStore()
	catalog := &recordingCatalog{}
	processor := NewProcessor(events, catalog, mapping.NewMapper("USD"))
	id := enqueueTestEvent(t, events, "orders/create", `{"id":9}`, nil)

	result, err := processor.Process(context.Background(), id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("expected ignored outcome, got %q", result.Outcome)
	}
	if events.event(id).Status != core.WebhookEventProcessed {
		t.Fatalf("expected unknown topic to settle as processed")
	}
	if catalog.upsertCount() != 0 || len(catalog.deletes) != 0 {
		t.Fatalf("expected no catalog calls")
	}
}

func TestProcessor_ReturnsStoreReadFailures(t *testing.T) {
	events := newMemoryEventStore()
	events.failGet = errBoom
	processor := NewProcessor(events, &recordingCatalog{}, mapping.NewMapper("USD"))
	if _, err := processor.Process(context.Background(), "evt_1"); err == nil {
		t.Fatalf("expected infrastructure failure to be returned for retry")
	}
}
