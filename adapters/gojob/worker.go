package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-catalog-sync/adapters/gologger"
	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/webhooks"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

type EventProcessor interface {
	Process(ctx context.Context, eventID string) (webhooks.ProcessResult, error)
}

// WebhookTask runs the webhook processor for the event named by a queue
// message. Business failures are settled on the event by the processor; only
// store failures come back as errors and are retried by the worker.
type WebhookTask struct {
	processor EventProcessor
}

func NewWebhookTask(processor EventProcessor) *WebhookTask {
	return &WebhookTask{processor: processor}
}

func (t *WebhookTask) GetID() string {
	return JobIDProcessWebhook
}

func (t *WebhookTask) GetPath() string {
	return JobIDProcessWebhook
}

// GetHandler exists for cron registration; the task needs an event id and
// only runs from queue deliveries.
func (t *WebhookTask) GetHandler() func() error {
	return func() error {
		return fmt.Errorf("gojob: %s runs from queue deliveries only", JobIDProcessWebhook)
	}
}

func (t *WebhookTask) GetHandlerConfig() job.HandlerOptions {
	return job.HandlerOptions{}
}

func (t *WebhookTask) GetConfig() job.Config {
	return job.Config{}
}

func (t *WebhookTask) GetEngine() job.Engine {
	return nil
}

func (t *WebhookTask) Execute(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	if t == nil || t.processor == nil {
		return fmt.Errorf("gojob: webhook processor is not configured")
	}
	eventID, err := EventIDFromMessage(msg)
	if err != nil {
		return err
	}
	// the go-job worker does not recover handler panics
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("gojob: webhook event %s panicked: %v", eventID, recovered)
		}
	}()
	_, err = t.processor.Process(ctx, eventID)
	return err
}

// WorkerConfig sizes the go-job worker that drains the webhook queue.
type WorkerConfig struct {
	Concurrency int
	Retry       RetryPolicy
	Logger      core.Logger
	Hooks       []worker.Hook
	IdleDelay   time.Duration
}

// NewWorker builds a go-job worker over dequeuer. Tasks are registered by
// the caller with Register.
func NewWorker(dequeuer queue.Dequeuer, cfg WorkerConfig) *worker.Worker {
	opts := []worker.Option{
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithRetryPolicy(cfg.Retry.WorkerPolicy()),
		worker.WithHooks(cfg.Hooks...),
	}
	if cfg.IdleDelay > 0 {
		opts = append(opts, worker.WithIdleDelay(cfg.IdleDelay))
	}
	if cfg.Logger != nil {
		opts = append(opts, worker.WithLogger(gologger.ToJobLogger(cfg.Logger)))
	}
	return worker.NewWorker(dequeuer, opts...)
}

// NewWebhookWorker builds the worker and registers the webhook task on it.
func NewWebhookWorker(dequeuer queue.Dequeuer, processor EventProcessor, cfg WorkerConfig) (*worker.Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("gojob: webhook processor is required")
	}
	w := NewWorker(dequeuer, cfg)
	if err := w.Register(NewWebhookTask(processor)); err != nil {
		return nil, err
	}
	return w, nil
}

func jobID(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}

var _ job.Task = (*WebhookTask)(nil)
