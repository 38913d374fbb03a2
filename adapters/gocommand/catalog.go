package gocommand

import (
	"context"

	catalogcommand "github.com/goliatone/go-catalog-sync/command"
	"github.com/goliatone/go-catalog-sync/core"
	catalogquery "github.com/goliatone/go-catalog-sync/query"
	syncengine "github.com/goliatone/go-catalog-sync/sync"
	"github.com/goliatone/go-catalog-sync/webhooks"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// CatalogHandlers lists the dependencies behind the catalog commands and
// queries. Nil dependencies skip the matching registration.
type CatalogHandlers struct {
	Reconciler catalogcommand.Reconciler
	Processor  catalogcommand.EventProcessor
	Recoverer  catalogcommand.EventRecoverer
	Catalog    core.CatalogStore
	Events     core.WebhookEventStore
	States     catalogquery.SyncStateReader
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterCatalogHandlers registers and subscribes every catalog command and
// query whose dependencies are present. On failure the subscriptions made so
// far are released.
func RegisterCatalogHandlers(adapter *RegistryAdapter, h CatalogHandlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	if !adapter.ready() {
		return nil, errRegistryMissing
	}
	subs := Subscriptions{}
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if h.Reconciler != nil {
		if err := add(RegisterAndSubscribe[catalogcommand.RunReconciliationMessage](adapter, catalogcommand.NewRunReconciliationCommand(h.Reconciler), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if h.Processor != nil {
		if err := add(RegisterAndSubscribe[catalogcommand.ProcessWebhookEventMessage](adapter, catalogcommand.NewProcessWebhookEventCommand(h.Processor), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if h.Recoverer != nil {
		if err := add(RegisterAndSubscribe[catalogcommand.RecoverWebhookEventsMessage](adapter, catalogcommand.NewRecoverWebhookEventsCommand(h.Recoverer), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if h.Catalog != nil || h.Events != nil {
		if err := add(RegisterAndSubscribe[catalogcommand.PurgeMessage](adapter, catalogcommand.NewPurgeCommand(h.Catalog, h.Events), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if h.States != nil {
		if err := add(RegisterAndSubscribeQuery[catalogquery.GetSyncStateMessage, core.SyncState](adapter, catalogquery.NewGetSyncStateQuery(h.States), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if h.Events != nil {
		if err := add(RegisterAndSubscribeQuery[catalogquery.GetWebhookEventMessage, core.WebhookEvent](adapter, catalogquery.NewGetWebhookEventQuery(h.Events), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// RunReconciliation dispatches a reconciliation command and returns the
// engine result collected during execution.
func RunReconciliation(ctx context.Context, msg catalogcommand.RunReconciliationMessage) (syncengine.Result, error) {
	return dispatchWithResult[catalogcommand.RunReconciliationMessage, syncengine.Result](ctx, msg)
}

func ProcessWebhookEvent(ctx context.Context, eventID string) (webhooks.ProcessResult, error) {
	return dispatchWithResult[catalogcommand.ProcessWebhookEventMessage, webhooks.ProcessResult](
		ctx,
		catalogcommand.ProcessWebhookEventMessage{EventID: eventID},
	)
}

func GetSyncState(ctx context.Context, resource core.ResourceKind) (core.SyncState, error) {
	return queryChecked[catalogquery.GetSyncStateMessage, core.SyncState](ctx, catalogquery.GetSyncStateMessage{Resource: resource})
}

func GetWebhookEvent(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	return queryChecked[catalogquery.GetWebhookEventMessage, core.WebhookEvent](ctx, catalogquery.GetWebhookEventMessage{EventID: eventID})
}

func dispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var zero R
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := command.NewResult[R]()
	err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg)
	out, _ := collector.Load()
	return out, err
}

func queryChecked[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
