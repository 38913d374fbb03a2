package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultRecoverStaleAfter = 5 * time.Minute
	defaultRecoverBatchSize  = 100
)

// Recoverer re-schedules events left queued, for example after a crash
// between storing an event and processing it.
type Recoverer struct {
	Events     core.WebhookEventStore
	Scheduler  core.TaskScheduler
	StaleAfter time.Duration
	BatchSize  int
	Logger     core.Logger
	Now        func() time.Time
}

func NewRecoverer(events core.WebhookEventStore, scheduler core.TaskScheduler, staleAfter time.Duration) *Recoverer {
	return &Recoverer{
		Events:     events,
		Scheduler:  scheduler,
		StaleAfter: staleAfter,
		BatchSize:  defaultRecoverBatchSize,
		Logger:     glog.Nop(),
	}
}

// Recover schedules every queued event older than StaleAfter and returns how
// many were scheduled.
func (r *Recoverer) Recover(ctx context.Context) (int, error) {
	if r == nil || r.Events == nil || r.Scheduler == nil {
		return 0, fmt.Errorf("webhooks: recoverer requires event store and scheduler")
	}
	staleAfter := r.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultRecoverStaleAfter
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultRecoverBatchSize
	}

	events, err := r.Events.ListQueued(ctx, r.now().Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return scheduled, err
		}
		if err := r.Scheduler.ScheduleWebhookEvent(ctx, event.ID); err != nil {
			return scheduled, fmt.Errorf("webhooks: reschedule event %s: %w", event.ID, err)
		}
		scheduled++
	}
	if scheduled > 0 && r.Logger != nil {
		r.Logger.WithContext(ctx).Info("webhook events rescheduled", "count", scheduled)
	}
	return scheduled, nil
}

func (r *Recoverer) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
