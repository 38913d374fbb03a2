package command

import (
	"context"

	"github.com/goliatone/go-catalog-sync/core"
	syncengine "github.com/goliatone/go-catalog-sync/sync"
	"github.com/goliatone/go-catalog-sync/webhooks"
	gocmd "github.com/goliatone/go-command"
)

type Reconciler interface {
	Run(ctx context.Context, opts syncengine.RunOptions) (syncengine.Result, error)
}

type EventProcessor interface {
	Process(ctx context.Context, eventID string) (webhooks.ProcessResult, error)
}

type EventRecoverer interface {
	Recover(ctx context.Context) (int, error)
}

type RunReconciliationCommand struct {
	reconciler Reconciler
}

func NewRunReconciliationCommand(reconciler Reconciler) *RunReconciliationCommand {
	return &RunReconciliationCommand{reconciler: reconciler}
}

// Execute runs the engine and stores the sync.Result on the context result
// collector, also when the run reports an error.
func (c *RunReconciliationCommand) Execute(ctx context.Context, msg RunReconciliationMessage) error {
	if c == nil || c.reconciler == nil {
		return commandDependencyError("command: reconciliation engine is required")
	}
	out, err := c.reconciler.Run(ctx, syncengine.RunOptions{
		Full:      msg.Full,
		Resources: append([]core.ResourceKind(nil), msg.Resources...),
	})
	storeResult(ctx, out)
	return err
}

type ProcessWebhookEventCommand struct {
	processor EventProcessor
}

func NewProcessWebhookEventCommand(processor EventProcessor) *ProcessWebhookEventCommand {
	return &ProcessWebhookEventCommand{processor: processor}
}

func (c *ProcessWebhookEventCommand) Execute(ctx context.Context, msg ProcessWebhookEventMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: webhook processor is required")
	}
	out, err := c.processor.Process(ctx, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecoverResult struct {
	Scheduled int
}

type RecoverWebhookEventsCommand struct {
	recoverer EventRecoverer
}

func NewRecoverWebhookEventsCommand(recoverer EventRecoverer) *RecoverWebhookEventsCommand {
	return &RecoverWebhookEventsCommand{recoverer: recoverer}
}

func (c *RecoverWebhookEventsCommand) Execute(ctx context.Context, _ RecoverWebhookEventsMessage) error {
	if c == nil || c.recoverer == nil {
		return commandDependencyError("command: webhook recoverer is required")
	}
	scheduled, err := c.recoverer.Recover(ctx)
	storeResult(ctx, RecoverResult{Scheduled: scheduled})
	return err
}

type PurgeResult struct {
	CatalogPurged int
	EventsPurged  int
}

type PurgeCommand struct {
	catalog core.CatalogStore
	events  core.WebhookEventStore
}

func NewPurgeCommand(catalog core.CatalogStore, events core.WebhookEventStore) *PurgeCommand {
	return &PurgeCommand{catalog: catalog, events: events}
}

func (c *PurgeCommand) Execute(ctx context.Context, msg PurgeMessage) error {
	if c == nil {
		return commandDependencyError("command: purge stores are required")
	}
	var out PurgeResult
	if msg.DeletedOlderThan > 0 {
		if c.catalog == nil {
			return commandDependencyError("command: catalog store is required")
		}
		purged, err := c.catalog.PurgeDeletedOlderThan(ctx, msg.DeletedOlderThan)
		if err != nil {
			return err
		}
		out.CatalogPurged = purged
	}
	if msg.ProcessedOlderThan > 0 {
		if c.events == nil {
			return commandDependencyError("command: webhook event store is required")
		}
		purged, err := c.events.PurgeProcessedOlderThan(ctx, msg.ProcessedOlderThan)
		if err != nil {
			return err
		}
		out.EventsPurged = purged
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
