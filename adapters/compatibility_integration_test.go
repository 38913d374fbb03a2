package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-sync/adapters/gocommand"
	"github.com/goliatone/go-catalog-sync/adapters/gojob"
	"github.com/goliatone/go-catalog-sync/adapters/gologger"
	catalogcommand "github.com/goliatone/go-catalog-sync/command"
	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/webhooks"
	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	provider, logger := gologger.Resolve("catalog-sync", gologger.NewJSONLogger(&buf, "debug"), nil)
	if gologger.ToJobProvider(provider) == nil || gologger.ToJobLogger(logger) == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	processor := &compatProcessor{seen: make(chan string, 1)}
	subs, err := gocommand.RegisterCatalogHandlers(adapter, gocommand.CatalogHandlers{Processor: processor})
	if err != nil {
		t.Fatalf("register catalog handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(catalogcommand.TypeProcessWebhookEvent); !ok {
		t.Fatalf("expected process command mirrored into go-job queue registry")
	}

	memQueue := gojob.NewMemoryQueue(4)
	defer memQueue.Close()
	scheduler := gojob.NewTaskScheduler(memQueue)
	if err := scheduler.ScheduleWebhookEvent(ctx, "evt-compat"); err != nil {
		t.Fatalf("schedule webhook event: %v", err)
	}

	jobWorker, err := gojob.NewWebhookWorker(memQueue, commandProcessor{}, gojob.WorkerConfig{
		Logger: provider.GetLogger("worker"),
	})
	if err != nil {
		t.Fatalf("new webhook worker: %v", err)
	}
	if err := jobWorker.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	select {
	case eventID := <-processor.seen:
		if eventID != "evt-compat" {
			t.Fatalf("expected processor to receive evt-compat through command dispatch, got %q", eventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the worker to dispatch the event")
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := jobWorker.Stop(stopCtx); err != nil {
		t.Fatalf("stop worker: %v", err)
	}
	if memQueue.Len() != 0 || len(memQueue.DeadLetters()) != 0 {
		t.Fatalf("expected delivery to be acked")
	}

	logger.Info("compat run finished", "event_id", "evt-compat")
	if !strings.Contains(buf.String(), "compat run finished") {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
}

type compatProcessor struct {
	seen chan string
}

func (p *compatProcessor) Process(_ context.Context, eventID string) (webhooks.ProcessResult, error) {
	p.seen <- eventID
	return webhooks.ProcessResult{EventID: eventID, Outcome: webhooks.OutcomeProcessed}, nil
}

// commandProcessor routes worker deliveries through the global go-command
// dispatcher instead of calling the processor directly.
type commandProcessor struct{}

func (commandProcessor) Process(ctx context.Context, eventID string) (webhooks.ProcessResult, error) {
	return gocommand.ProcessWebhookEvent(ctx, eventID)
}

var _ core.TaskScheduler = (*gojob.TaskScheduler)(nil)
