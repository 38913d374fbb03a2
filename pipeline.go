package catalogsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-catalog-sync/adapters/gocommand"
	"github.com/goliatone/go-catalog-sync/adapters/gojob"
	"github.com/goliatone/go-catalog-sync/adapters/gologger"
	catalogcommand "github.com/goliatone/go-catalog-sync/command"
	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/mapping"
	"github.com/goliatone/go-catalog-sync/providers/shopify"
	catalogquery "github.com/goliatone/go-catalog-sync/query"
	sqlstore "github.com/goliatone/go-catalog-sync/store/sql"
	syncengine "github.com/goliatone/go-catalog-sync/sync"
	"github.com/goliatone/go-catalog-sync/transport"
	"github.com/goliatone/go-catalog-sync/webhooks"
	"github.com/goliatone/go-job/queue/worker"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type Commands struct {
	RunReconciliation    *catalogcommand.RunReconciliationCommand
	ProcessWebhookEvent  *catalogcommand.ProcessWebhookEventCommand
	RecoverWebhookEvents *catalogcommand.RecoverWebhookEventsCommand
	Purge                *catalogcommand.PurgeCommand
}

type Queries struct {
	GetSyncState    *catalogquery.GetSyncStateQuery
	GetWebhookEvent *catalogquery.GetWebhookEventQuery
}

// Pipeline wires the webhook path (receiver, queue, worker, processor) and
// the reconciliation path (catalog client, engine, scheduler) over one set
// of stores.
type Pipeline struct {
	config   Config
	logger   core.Logger
	provider core.LoggerProvider

	stores    core.StoreProvider
	states    core.SyncStateStore
	queue     *gojob.MemoryQueue
	receiver  *webhooks.Receiver
	processor *webhooks.Processor
	recoverer *webhooks.Recoverer
	worker    *worker.Worker
	engine    *syncengine.Engine
	scheduler *syncengine.Scheduler
	commands  Commands
	queries   Queries
	routes    *http.ServeMux

	mu      sync.Mutex
	running bool
}

type Option func(*pipelineOptions)

type pipelineOptions struct {
	logger        core.Logger
	provider      core.LoggerProvider
	metrics       core.MetricsRecorder
	source        core.CatalogSource
	cache         repositorycache.CacheService
	httpClient    transport.HTTPDoer
	queueCapacity int
	now           func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *pipelineOptions) {
		o.provider = provider
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(o *pipelineOptions) {
		o.metrics = recorder
	}
}

// WithCatalogSource replaces the Shopify catalog client.
func WithCatalogSource(source core.CatalogSource) Option {
	return func(o *pipelineOptions) {
		o.source = source
	}
}

func WithCacheService(service repositorycache.CacheService) Option {
	return func(o *pipelineOptions) {
		o.cache = service
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(o *pipelineOptions) {
		o.httpClient = client
	}
}

func WithQueueCapacity(capacity int) Option {
	return func(o *pipelineOptions) {
		o.queueCapacity = capacity
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) {
		o.now = now
	}
}

// New builds every component from cfg over the given stores. Nothing runs
// until Start.
func New(cfg Config, stores core.StoreProvider, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stores == nil || stores.WebhookEventStore() == nil || stores.CatalogStore() == nil || stores.SyncStateStore() == nil {
		return nil, fmt.Errorf("catalogsync: store provider with event, catalog and sync state stores is required")
	}
	options := pipelineOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.metrics == nil {
		options.metrics = core.NopMetricsRecorder{}
	}
	provider, logger := gologger.Resolve(cfg.ServiceName, options.provider, options.logger)

	p := &Pipeline{
		config:   cfg,
		logger:   logger,
		provider: provider,
		stores:   stores,
	}
	events := stores.WebhookEventStore()
	catalog := stores.CatalogStore()

	states, err := resolveSyncStates(cfg.Cache, stores.SyncStateStore(), options.cache)
	if err != nil {
		return nil, err
	}
	p.states = states

	mapper := mapping.NewMapper(cfg.Sync.DefaultCurrency)
	p.queue = gojob.NewMemoryQueue(options.queueCapacity)
	scheduler := gojob.NewTaskScheduler(p.queue)

	receiverOpts := []webhooks.ReceiverOption{
		webhooks.WithReceiverLogger(provider.GetLogger("webhooks.receiver")),
		webhooks.WithReceiverMetrics(options.metrics),
	}
	processorOpts := []webhooks.ProcessorOption{
		webhooks.WithProcessorLogger(provider.GetLogger("webhooks.processor")),
		webhooks.WithProcessorMetrics(options.metrics),
	}
	if options.now != nil {
		receiverOpts = append(receiverOpts, webhooks.WithReceiverClock(options.now))
		processorOpts = append(processorOpts, webhooks.WithProcessorClock(options.now))
	}
	p.receiver, err = shopify.NewWebhookReceiver(
		shopify.WebhookConfig{Secret: cfg.Webhook.Secret, ReplayWindow: cfg.Webhook.ReplayWindow},
		events,
		scheduler,
		receiverOpts...,
	)
	if err != nil {
		return nil, err
	}
	p.processor = webhooks.NewProcessor(events, catalog, mapper, processorOpts...)
	p.recoverer = webhooks.NewRecoverer(events, scheduler, cfg.Worker.RequeueAfter)
	p.recoverer.Logger = provider.GetLogger("webhooks.recoverer")
	if options.now != nil {
		p.recoverer.Now = options.now
	}

	p.worker, err = gojob.NewWebhookWorker(p.queue, p.processor, gojob.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
		Retry: gojob.RetryPolicy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
		},
		Logger: provider.GetLogger("worker"),
		Hooks:  []worker.Hook{gojob.NewObservingHook(provider.GetLogger("worker.hooks"), options.metrics)},
	})
	if err != nil {
		return nil, err
	}

	source := options.source
	if source == nil {
		source, err = shopify.NewCatalogClient(shopify.ClientConfig{
			ShopDomain:        cfg.Shopify.ShopDomain,
			AccessToken:       cfg.Shopify.AccessToken,
			APIVersion:        cfg.Shopify.APIVersion,
			RequestsPerSecond: cfg.Shopify.RequestsPerSecond,
			Burst:             cfg.Shopify.Burst,
			MaxPageSize:       cfg.Sync.MaxPageSize,
			HTTPClient:        options.httpClient,
		}, shopify.WithClientLogger(provider.GetLogger("shopify.client")))
		if err != nil {
			return nil, err
		}
	}

	engineOpts := []syncengine.Option{
		syncengine.WithEventStore(events),
		syncengine.WithLocker(stores.Locker()),
		syncengine.WithMapper(mapper),
		syncengine.WithConfig(syncengine.ConfigFromCore(cfg.Sync)),
		syncengine.WithLogger(provider.GetLogger("sync.engine")),
		syncengine.WithMetrics(options.metrics),
	}
	if options.now != nil {
		engineOpts = append(engineOpts, syncengine.WithClock(options.now))
	}
	p.engine, err = syncengine.NewEngine(source, catalog, states, engineOpts...)
	if err != nil {
		return nil, err
	}
	p.scheduler = syncengine.NewScheduler(p.engine, cfg.Sync.Interval,
		syncengine.WithRecoverer(p.recoverer),
		syncengine.WithSchedulerLogger(provider.GetLogger("sync.scheduler")),
	)

	p.commands = Commands{
		RunReconciliation:    catalogcommand.NewRunReconciliationCommand(p.engine),
		ProcessWebhookEvent:  catalogcommand.NewProcessWebhookEventCommand(p.processor),
		RecoverWebhookEvents: catalogcommand.NewRecoverWebhookEventsCommand(p.recoverer),
		Purge:                catalogcommand.NewPurgeCommand(catalog, events),
	}
	p.queries = Queries{
		GetSyncState:    catalogquery.NewGetSyncStateQuery(states),
		GetWebhookEvent: catalogquery.NewGetWebhookEventQuery(events),
	}
	p.routes = p.newMux()
	return p, nil
}

// NewFromPersistence builds the SQL stores from a go-persistence-bun client
// or a *bun.DB and then the pipeline.
func NewFromPersistence(cfg Config, client any, opts ...Option) (*Pipeline, error) {
	stores, err := sqlstore.NewRepositoryFactory().BuildStores(client)
	if err != nil {
		return nil, err
	}
	return New(cfg, stores, opts...)
}

func resolveSyncStates(cfg core.CacheConfig, base core.SyncStateStore, service repositorycache.CacheService) (core.SyncStateStore, error) {
	if !cfg.Enabled {
		return base, nil
	}
	if service == nil {
		cacheConfig := repositorycache.DefaultConfig()
		if cfg.TTL > 0 {
			cacheConfig.TTL = cfg.TTL
		}
		created, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("catalogsync: sync state cache: %w", err)
		}
		service = created
	}
	return sqlstore.NewCachedSyncStateStore(base, service)
}

// Start re-schedules every event left queued by a previous process, then
// starts the worker and the reconciliation scheduler.
func (p *Pipeline) Start(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("catalogsync: pipeline is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("catalogsync: pipeline already started")
	}

	// The queue is in memory, so every stored queued event predates it.
	startup := *p.recoverer
	startup.StaleAfter = time.Nanosecond
	if scheduled, err := startup.Recover(ctx); err != nil {
		p.logger.WithContext(ctx).Warn("startup webhook recovery failed", "error", err)
	} else if scheduled > 0 {
		p.logger.WithContext(ctx).Info("startup webhook recovery", "scheduled", scheduled)
	}

	if err := p.worker.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if err := p.scheduler.Start(ctx); err != nil {
		_ = p.worker.Stop(context.WithoutCancel(ctx))
		return err
	}
	p.running = true
	p.logger.WithContext(ctx).Info("catalog sync pipeline started",
		"webhook_path", p.config.Webhook.Path,
		"sync_interval", p.scheduler.Interval().String(),
	)
	return nil
}

// Stop halts the scheduler, then the worker, and closes the queue. Pending
// queue messages are dropped; their events stay queued for the next process.
// A stopped pipeline cannot be started again.
func (p *Pipeline) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	schedulerErr := p.scheduler.Stop(ctx)
	workerErr := p.worker.Stop(ctx)
	p.queue.Close()
	if workerErr != nil {
		return workerErr
	}
	return schedulerErr
}

// RegisterCommands exposes the pipeline commands and queries on a go-command
// registry and the global dispatcher.
func (p *Pipeline) RegisterCommands(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if p == nil {
		return nil, fmt.Errorf("catalogsync: pipeline is nil")
	}
	return gocommand.RegisterCatalogHandlers(adapter, gocommand.CatalogHandlers{
		Reconciler: p.engine,
		Processor:  p.processor,
		Recoverer:  p.recoverer,
		Catalog:    p.stores.CatalogStore(),
		Events:     p.stores.WebhookEventStore(),
		States:     p.states,
	})
}

func (p *Pipeline) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

func (p *Pipeline) Commands() Commands {
	if p == nil {
		return Commands{}
	}
	return p.commands
}

func (p *Pipeline) Queries() Queries {
	if p == nil {
		return Queries{}
	}
	return p.queries
}

func (p *Pipeline) Engine() *syncengine.Engine {
	if p == nil {
		return nil
	}
	return p.engine
}

func (p *Pipeline) Receiver() *webhooks.Receiver {
	if p == nil {
		return nil
	}
	return p.receiver
}

func (p *Pipeline) Processor() *webhooks.Processor {
	if p == nil {
		return nil
	}
	return p.processor
}

func (p *Pipeline) Queue() *gojob.MemoryQueue {
	if p == nil {
		return nil
	}
	return p.queue
}

func (p *Pipeline) Worker() *worker.Worker {
	if p == nil {
		return nil
	}
	return p.worker
}
