package gojob

import (
	"context"
	"fmt"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-job/queue"
)

// TaskScheduler hands stored webhook events to a go-job queue.
type TaskScheduler struct {
	enqueuer queue.Enqueuer
}

func NewTaskScheduler(enqueuer queue.Enqueuer) *TaskScheduler {
	return &TaskScheduler{enqueuer: enqueuer}
}

func (s *TaskScheduler) ScheduleWebhookEvent(ctx context.Context, eventID string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewWebhookMessage(eventID)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(ctx, msg)
	return err
}

var _ core.TaskScheduler = (*TaskScheduler)(nil)
