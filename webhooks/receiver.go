package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	glog "github.com/goliatone/go-logger/glog"
)

// HeaderSet names the delivery headers a platform sends. DeliveryID lists
// accepted aliases in lookup order.
type HeaderSet struct {
	Signature   string
	Topic       string
	Shop        string
	DeliveryID  []string
	TriggeredAt string
}

func (h HeaderSet) validate() error {
	if strings.TrimSpace(h.Signature) == "" || strings.TrimSpace(h.Topic) == "" ||
		strings.TrimSpace(h.Shop) == "" || len(h.DeliveryID) == 0 {
		return fmt.Errorf("webhooks: header set requires signature, topic, shop and delivery id names")
	}
	return nil
}

// InboundRequest is a delivery as received. Body holds the exact bytes that
// were signed.
type InboundRequest struct {
	Headers map[string]string
	Body    []byte
}

type ReceiveResult struct {
	Accepted   bool
	Duplicate  bool
	Scheduled  bool
	EventID    string
	DeliveryID string
	StatusCode int
}

type Receiver struct {
	Secret       string
	Headers      HeaderSet
	ReplayWindow time.Duration
	Events       core.WebhookEventStore
	Scheduler    core.TaskScheduler
	Logger       core.Logger
	Metrics      core.MetricsRecorder
	Now          func() time.Time
}

type ReceiverOption func(*Receiver)

func WithReceiverLogger(logger core.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.Logger = logger
	}
}

func WithReceiverMetrics(recorder core.MetricsRecorder) ReceiverOption {
	return func(r *Receiver) {
		r.Metrics = recorder
	}
}

func WithReplayWindow(window time.Duration) ReceiverOption {
	return func(r *Receiver) {
		r.ReplayWindow = window
	}
}

func WithReceiverClock(now func() time.Time) ReceiverOption {
	return func(r *Receiver) {
		r.Now = now
	}
}

func NewReceiver(
	secret string,
	headers HeaderSet,
	events core.WebhookEventStore,
	scheduler core.TaskScheduler,
	opts ...ReceiverOption,
) (*Receiver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhooks: signing secret is required")
	}
	if err := headers.validate(); err != nil {
		return nil, err
	}
	if events == nil || scheduler == nil {
		return nil, fmt.Errorf("webhooks: receiver requires event store and scheduler")
	}
	receiver := &Receiver{
		Secret:    secret,
		Headers:   headers,
		Events:    events,
		Scheduler: scheduler,
		Logger:    glog.Nop(),
		Metrics:   core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(receiver)
		}
	}
	return receiver, nil
}

// Receive validates, authenticates and stores one delivery, then schedules
// processing for newly stored events. Duplicates are accepted without
// scheduling. A scheduling failure is logged and still acknowledged, since the
// event is durable and the recoverer re-schedules it.
func (r *Receiver) Receive(ctx context.Context, req InboundRequest) (ReceiveResult, error) {
	if r == nil || r.Events == nil || r.Scheduler == nil {
		return ReceiveResult{}, fmt.Errorf("webhooks: receiver is not configured")
	}
	startedAt := r.now()

	signature := headerValue(req.Headers, r.Headers.Signature)
	topic := headerValue(req.Headers, r.Headers.Topic)
	shop := headerValue(req.Headers, r.Headers.Shop)
	deliveryID := firstHeader(req.Headers, r.Headers.DeliveryID...)

	missing := make([]string, 0, 4)
	for _, header := range []struct{ name, value string }{
		{r.Headers.Signature, signature},
		{r.Headers.Topic, topic},
		{r.Headers.Shop, shop},
	} {
		if header.value == "" {
			missing = append(missing, header.name)
		}
	}
	if deliveryID == "" {
		missing = append(missing, strings.Join(r.Headers.DeliveryID, "|"))
	}
	if len(missing) > 0 {
		r.count(ctx, "rejected", "missing_headers")
		return ReceiveResult{StatusCode: http.StatusBadRequest}, core.ValidationError(
			"webhooks: required delivery headers are missing",
			map[string]any{"missing": missing},
		)
	}

	if !Verify(req.Body, r.Secret, signature) {
		r.count(ctx, "rejected", "signature")
		return ReceiveResult{StatusCode: http.StatusUnauthorized}, core.AuthenticationError(
			"webhooks: signature verification failed",
			map[string]any{"delivery_id": deliveryID},
		)
	}

	triggeredAt, err := r.triggeredAt(req.Headers)
	if err != nil {
		r.count(ctx, "rejected", "replay_window")
		return ReceiveResult{StatusCode: http.StatusUnauthorized}, err
	}

	enqueued, err := r.Events.Enqueue(ctx, core.EnqueueWebhookInput{
		DeliveryID:  deliveryID,
		Topic:       strings.ToLower(topic),
		Shop:        shop,
		TriggeredAt: triggeredAt,
		Payload:     req.Body,
		ContentHash: ContentHash(req.Body),
	})
	if err != nil {
		return ReceiveResult{StatusCode: http.StatusInternalServerError}, err
	}

	result := ReceiveResult{
		Accepted:   true,
		Duplicate:  !enqueued.Created,
		EventID:    enqueued.EventID,
		DeliveryID: deliveryID,
		StatusCode: http.StatusOK,
	}
	if result.Duplicate {
		r.count(ctx, "accepted", "duplicate")
		r.logger(ctx).Info("webhook delivery duplicate",
			"delivery_id", deliveryID,
			"event_id", enqueued.EventID,
			"status", string(enqueued.Status),
		)
		return result, nil
	}

	if err := r.Scheduler.ScheduleWebhookEvent(ctx, enqueued.EventID); err != nil {
		r.logger(ctx).Error("webhook scheduling failed",
			"delivery_id", deliveryID,
			"event_id", enqueued.EventID,
			"error", err,
		)
	} else {
		result.Scheduled = true
	}
	r.count(ctx, "accepted", "new")
	r.logger(ctx).Info("webhook delivery accepted",
		"delivery_id", deliveryID,
		"event_id", enqueued.EventID,
		"topic", topic,
		"shop", shop,
		"duration_ms", r.now().Sub(startedAt).Milliseconds(),
	)
	return result, nil
}

func (r *Receiver) triggeredAt(headers map[string]string) (*time.Time, error) {
	name := strings.TrimSpace(r.Headers.TriggeredAt)
	if name == "" {
		return nil, nil
	}
	raw := headerValue(headers, name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := core.ParseTimestamp(raw)
	if err != nil {
		if r.ReplayWindow > 0 {
			return nil, core.AuthenticationError("webhooks: trigger time is not a valid timestamp", map[string]any{"header": name})
		}
		return nil, nil
	}
	parsed = parsed.UTC()
	if r.ReplayWindow > 0 {
		delta := r.now().Sub(parsed)
		if delta < 0 {
			delta = -delta
		}
		if delta > r.ReplayWindow {
			return nil, core.AuthenticationError(
				"webhooks: trigger time outside replay window",
				map[string]any{"triggered_at": parsed.Format(time.RFC3339)},
			)
		}
	}
	return &parsed, nil
}

func (r *Receiver) count(ctx context.Context, outcome string, reason string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.IncCounter(ctx, "catalog.webhooks.received", 1, map[string]string{
		"outcome": outcome,
		"reason":  reason,
	})
}

func (r *Receiver) logger(ctx context.Context) core.Logger {
	if r.Logger == nil {
		return glog.Nop()
	}
	return r.Logger.WithContext(ctx)
}

func (r *Receiver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func firstHeader(headers map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := headerValue(headers, key); value != "" {
			return value
		}
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
