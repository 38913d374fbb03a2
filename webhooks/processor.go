package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/mapping"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
)

type ProcessResult struct {
	EventID string
	Topic   string
	Outcome string
	Upsert  core.UpsertCatalogResult
}

type Processor struct {
	Events  core.WebhookEventStore
	Catalog core.CatalogStore
	Mapper  mapping.Mapper
	Logger  core.Logger
	Metrics core.MetricsRecorder
	Now     func() time.Time
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.Logger = logger
	}
}

func WithProcessorMetrics(recorder core.MetricsRecorder) ProcessorOption {
	return func(p *Processor) {
		p.Metrics = recorder
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.Now = now
	}
}

func NewProcessor(events core.WebhookEventStore, catalog core.CatalogStore, mapper mapping.Mapper, opts ...ProcessorOption) *Processor {
	processor := &Processor{
		Events:  events,
		Catalog: catalog,
		Mapper:  mapper,
		Logger:  glog.Nop(),
		Metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(processor)
		}
	}
	return processor
}

// Process settles one stored event. Missing or already-settled events are
// skipped. Mapping and catalog failures are recorded on the event and are not
// returned; only failures to read or settle the event itself are returned so
// the caller can retry.
func (p *Processor) Process(ctx context.Context, eventID string) (ProcessResult, error) {
	if p == nil || p.Events == nil || p.Catalog == nil {
		return ProcessResult{}, fmt.Errorf("webhooks: processor requires event and catalog stores")
	}
	startedAt := p.now()
	result := ProcessResult{EventID: eventID}

	event, err := p.Events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, core.ErrEventNotFound) {
			result.Outcome = OutcomeSkipped
			return result, nil
		}
		return result, err
	}
	result.Topic = event.Topic
	if event.Status != core.WebhookEventQueued {
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	topic := ParseTopic(event.Topic)
	applied, applyErr := p.apply(ctx, topic, event)
	if applyErr != nil {
		if err := p.Events.MarkFailed(ctx, event.ID, applyErr.Error()); err != nil {
			return result, err
		}
		result.Outcome = OutcomeFailed
		p.observe(ctx, startedAt, event, result.Outcome, applyErr)
		return result, nil
	}

	if err := p.Events.MarkProcessed(ctx, event.ID); err != nil {
		return result, err
	}
	result.Upsert = applied
	result.Outcome = OutcomeProcessed
	if !topic.Known() {
		result.Outcome = OutcomeIgnored
	}
	p.observe(ctx, startedAt, event, result.Outcome, nil)
	return result, nil
}

func (p *Processor) apply(ctx context.Context, topic Topic, event core.WebhookEvent) (core.UpsertCatalogResult, error) {
	payload, err := DecodePayload(topic, event.Payload, p.Mapper)
	if err != nil {
		return core.UpsertCatalogResult{}, err
	}

	deletedAt := p.now()
	if event.TriggeredAt != nil {
		deletedAt = event.TriggeredAt.UTC()
	}

	switch typed := payload.(type) {
	case ProductUpsert:
		return p.Catalog.UpsertCatalogSnapshot(ctx, core.UpsertCatalogInput{
			Source:              core.UpsertSourceWebhook,
			ReplaceAssociations: false,
			ReplaceVariants:     true,
			Products:            []core.ProductSnapshot{typed.Product},
		})
	case CollectionUpsert:
		return p.Catalog.UpsertCatalogSnapshot(ctx, core.UpsertCatalogInput{
			Source:      core.UpsertSourceWebhook,
			Collections: []core.CollectionSnapshot{typed.Collection},
		})
	case ProductDelete:
		return core.UpsertCatalogResult{}, p.Catalog.DeleteProductByExternalID(ctx, typed.ExternalID, deletedAt)
	case CollectionDelete:
		return core.UpsertCatalogResult{}, p.Catalog.DeleteCollectionByExternalID(ctx, typed.ExternalID, deletedAt)
	case Unknown:
		p.logger(ctx).Debug("webhook topic ignored", "topic", typed.Topic.Raw, "event_id", event.ID)
		return core.UpsertCatalogResult{}, nil
	}
	return core.UpsertCatalogResult{}, fmt.Errorf("webhooks: unhandled payload %T", payload)
}

func (p *Processor) observe(ctx context.Context, startedAt time.Time, event core.WebhookEvent, outcome string, err error) {
	core.Observer{
		Logger:  p.logger(ctx),
		Metrics: p.Metrics,
		Prefix:  "catalog.webhooks",
		Now:     p.now,
	}.ObserveOperation(ctx, startedAt, "process", err, map[string]any{
		"event_id":    event.ID,
		"delivery_id": event.DeliveryID,
		"topic":       event.Topic,
		"outcome":     outcome,
	})
}

func (p *Processor) logger(ctx context.Context) core.Logger {
	if p.Logger == nil {
		return glog.Nop()
	}
	return p.Logger.WithContext(ctx)
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
