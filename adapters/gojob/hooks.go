package gojob

import (
	"context"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-job/queue/worker"
)

// ObservingHook reports worker outcomes through a core.Observer under the
// "catalog.worker" prefix.
type ObservingHook struct {
	Observer core.Observer
}

func NewObservingHook(logger core.Logger, metrics core.MetricsRecorder) *ObservingHook {
	return &ObservingHook{Observer: core.Observer{
		Logger:  logger,
		Metrics: metrics,
		Prefix:  "catalog.worker",
	}}
}

func (h *ObservingHook) OnStart(context.Context, worker.Event) {}

func (h *ObservingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.observe(ctx, event, "succeeded")
}

func (h *ObservingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.observe(ctx, event, "dropped")
}

func (h *ObservingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.observe(ctx, event, "retrying")
}

func (h *ObservingHook) observe(ctx context.Context, event worker.Event, outcome string) {
	if h == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"job_id":   jobID(message),
		"attempt":  event.Attempt,
		"outcome":  outcome,
		"delay_ms": event.Delay.Milliseconds(),
	}
	if message != nil {
		if eventID, ok := message.Parameters[ParamEventID]; ok {
			fields["event_id"] = eventID
		}
	}
	startedAt := event.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	observer := h.Observer
	observer.Now = func() time.Time { return startedAt.Add(event.Duration) }
	observer.ObserveOperation(ctx, startedAt, "job", event.Err, fields)
}

var _ worker.Hook = (*ObservingHook)(nil)
