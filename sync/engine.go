package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/mapping"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/goliatone/go-catalog-sync/sync"

	DefaultPageSize    = 50
	DefaultMaxPageSize = 100
)

type Config struct {
	PageSize         int
	MaxPageSize      int
	MaxPagesPerRun   int
	RunTimeout       time.Duration
	LeaseTTL         time.Duration
	DeletedRetention time.Duration
	WebhookRetention time.Duration
}

func ConfigFromCore(cfg core.SyncConfig) Config {
	return Config{
		PageSize:         cfg.PageSize,
		MaxPageSize:      cfg.MaxPageSize,
		MaxPagesPerRun:   cfg.MaxPagesPerRun,
		RunTimeout:       cfg.RunTimeout,
		LeaseTTL:         cfg.LeaseTTL,
		DeletedRetention: cfg.DeletedRetention,
		WebhookRetention: cfg.WebhookRetention,
	}
}

// PageSizeFor clamps requested into [1, max]. Zero or negative values fall
// back to DefaultPageSize.
func PageSizeFor(requested int, max int) int {
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if requested <= 0 {
		requested = DefaultPageSize
	}
	if requested > max {
		requested = max
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

type RunOptions struct {
	Full      bool
	Resources []core.ResourceKind
}

type ResourceResult struct {
	Resource        core.ResourceKind
	StartCursor     string
	Cursor          string
	Pages           int
	Upsert          core.UpsertCatalogResult
	MappingFailures int
	PartialProducts int
	Completed       bool
	Truncated       bool
	Skipped         bool
	Error           string
}

type Result struct {
	Full          bool
	Resources     []ResourceResult
	Pages         int
	Upsert        core.UpsertCatalogResult
	CatalogPurged int
	EventsPurged  int
	StartedAt     time.Time
	FinishedAt    time.Time
}

func (r Result) Resource(kind core.ResourceKind) (ResourceResult, bool) {
	for _, resource := range r.Resources {
		if resource.Resource == kind {
			return resource, true
		}
	}
	return ResourceResult{}, false
}

// Engine is the reconciliation engine.
type Engine struct {
	source  core.CatalogSource
	catalog core.CatalogStore
	states  core.SyncStateStore
	events  core.WebhookEventStore
	locker  core.Locker
	mapper  mapping.Mapper
	config  Config
	logger  core.Logger
	metrics core.MetricsRecorder
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Engine)

func WithEventStore(events core.WebhookEventStore) Option {
	return func(e *Engine) {
		e.events = events
	}
}

func WithLocker(locker core.Locker) Option {
	return func(e *Engine) {
		if locker != nil {
			e.locker = locker
		}
	}
}

func WithMapper(mapper mapping.Mapper) Option {
	return func(e *Engine) {
		e.mapper = mapper
	}
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(source core.CatalogSource, catalog core.CatalogStore, states core.SyncStateStore, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("sync: catalog source is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("sync: catalog store is required")
	}
	if states == nil {
		return nil, fmt.Errorf("sync: sync state store is required")
	}
	engine := &Engine{
		source:  source,
		catalog: catalog,
		states:  states,
		locker:  core.NewMemoryLocker(),
		mapper:  mapping.NewMapper(""),
		config: Config{
			PageSize:    DefaultPageSize,
			MaxPageSize: DefaultMaxPageSize,
			LeaseTTL:    core.DefaultLeaseTTL,
		},
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Run walks each requested resource kind, then purges expired soft-deleted
// catalog rows and processed webhook events. A failed walk does not stop the
// other kinds; all failures are joined into the returned error.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("sync: engine is not configured")
	}
	kinds, err := resolveKinds(opts.Resources)
	if err != nil {
		return Result{}, err
	}

	ctx, span := e.tracer.Start(ctx, "catalog.reconcile", trace.WithAttributes(
		attribute.Bool("catalog.full", opts.Full),
	))
	defer span.End()

	runCtx := ctx
	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	result := Result{Full: opts.Full, StartedAt: e.now()}
	var errs []error
	for _, kind := range kinds {
		resource, walkErr := e.walk(runCtx, kind, opts.Full)
		if walkErr != nil {
			resource.Error = walkErr.Error()
			errs = append(errs, walkErr)
		}
		result.Resources = append(result.Resources, resource)
		result.Pages += resource.Pages
		result.Upsert = result.Upsert.Add(resource.Upsert)
	}

	if err := e.purge(ctx, &result); err != nil {
		errs = append(errs, err)
	}
	result.FinishedAt = e.now()

	runErr := errors.Join(errs...)
	span.SetAttributes(
		attribute.Int("catalog.pages", result.Pages),
		attribute.Int("catalog.products_upserted", result.Upsert.ProductsUpserted),
		attribute.Int("catalog.collections_upserted", result.Upsert.CollectionsUpserted),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "reconciliation failed")
	}
	e.observer().ObserveOperation(ctx, result.StartedAt, "run", runErr, map[string]any{
		"full":                 opts.Full,
		"pages":                result.Pages,
		"products_upserted":    result.Upsert.ProductsUpserted,
		"collections_upserted": result.Upsert.CollectionsUpserted,
		"variants_upserted":    result.Upsert.VariantsUpserted,
		"catalog_purged":       result.CatalogPurged,
		"events_purged":        result.EventsPurged,
	})
	return result, runErr
}

func (e *Engine) walk(ctx context.Context, kind core.ResourceKind, full bool) (ResourceResult, error) {
	out := ResourceResult{Resource: kind}
	startedAt := e.now()
	ctx, span := e.tracer.Start(ctx, "catalog.reconcile.resource", trace.WithAttributes(
		attribute.String("catalog.resource", string(kind)),
		attribute.Bool("catalog.full", full),
	))
	defer span.End()

	err := e.walkLocked(ctx, kind, full, &out)
	span.SetAttributes(
		attribute.Int("catalog.pages", out.Pages),
		attribute.String("catalog.cursor", out.Cursor),
		attribute.Bool("catalog.skipped", out.Skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resource walk failed")
	}
	e.observer().ObserveOperation(ctx, startedAt, "resource", err, map[string]any{
		"resource":         string(kind),
		"full":             full,
		"pages":            out.Pages,
		"start_cursor":     out.StartCursor,
		"cursor":           out.Cursor,
		"mapping_failures": out.MappingFailures,
		"partial_products": out.PartialProducts,
		"completed":        out.Completed,
		"truncated":        out.Truncated,
		"skipped":          out.Skipped,
	})
	return out, err
}

func (e *Engine) walkLocked(ctx context.Context, kind core.ResourceKind, full bool, out *ResourceResult) error {
	ttl := e.config.LeaseTTL
	if ttl <= 0 {
		ttl = core.DefaultLeaseTTL
	}
	lease, err := e.locker.Acquire(ctx, core.LeaseKey(kind), ttl)
	if err != nil {
		if errors.Is(err, core.ErrLeaseHeld) {
			out.Skipped = true
			e.logger.WithContext(ctx).Info("reconciliation already running, skipping", "resource", string(kind))
			return nil
		}
		return fmt.Errorf("sync: acquire lease for %s: %w", kind, err)
	}
	defer func() {
		if unlockErr := lease.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			e.logger.WithContext(ctx).Error("release lease failed", "resource", string(kind), "error", unlockErr)
		}
	}()

	if !full {
		state, err := e.states.Get(ctx, kind)
		switch {
		case err == nil:
			out.StartCursor = state.Cursor
		case errors.Is(err, core.ErrSyncStateNotFound):
		default:
			return fmt.Errorf("sync: read cursor for %s: %w", kind, err)
		}
	}
	// The filter stays at the start cursor for the whole walk; pagination
	// tokens are only valid for the query that produced them.
	filter := out.StartCursor
	out.Cursor = out.StartCursor
	pageSize := PageSizeFor(e.config.PageSize, e.config.MaxPageSize)

	after := ""
	cursorHeld := false
	for {
		if e.config.MaxPagesPerRun > 0 && out.Pages >= e.config.MaxPagesPerRun {
			out.Truncated = true
			e.logger.WithContext(ctx).Warn("reconciliation page bound reached", "resource", string(kind), "pages", out.Pages)
			return nil
		}
		if ctx.Err() != nil {
			if runDeadlineReached(ctx, ctx.Err()) {
				e.truncateAtDeadline(ctx, kind, out)
				return nil
			}
			return ctx.Err()
		}

		page, err := e.source.FetchPage(ctx, core.CatalogPageRequest{
			Resource:     kind,
			First:        pageSize,
			After:        after,
			UpdatedSince: filter,
		})
		if err != nil {
			if runDeadlineReached(ctx, err) {
				e.truncateAtDeadline(ctx, kind, out)
				return nil
			}
			return fmt.Errorf("sync: fetch %s page %d: %w", kind, out.Pages+1, err)
		}

		snapshots, err := e.mapper.MapPage(kind, page.Nodes)
		if err != nil {
			return err
		}
		for _, failure := range snapshots.Failures {
			out.MappingFailures++
			e.logger.WithContext(ctx).Warn("catalog node skipped",
				"resource", string(kind),
				"page", out.Pages+1,
				"index", failure.Index,
				"error", failure.Err,
			)
		}
		if partial := snapshots.PartialProducts(); partial > 0 {
			out.PartialProducts += partial
			e.logger.WithContext(ctx).Warn("catalog products with truncated nested lists",
				"resource", string(kind),
				"page", out.Pages+1,
				"products", partial,
			)
		}

		if len(snapshots.Products) > 0 || len(snapshots.Collections) > 0 {
			upserted, err := e.catalog.UpsertCatalogSnapshot(ctx, core.UpsertCatalogInput{
				Source:              core.UpsertSourceReconcile,
				ReplaceVariants:     true,
				ReplaceAssociations: kind == core.ResourceProducts,
				Products:            snapshots.Products,
				Collections:         snapshots.Collections,
			})
			if err != nil {
				return fmt.Errorf("sync: upsert %s page %d: %w", kind, out.Pages+1, err)
			}
			out.Upsert = out.Upsert.Add(upserted)
		}

		out.Pages++
		// after a failed node the cursor stays put for the rest of the walk
		if !cursorHeld {
			out.Cursor = core.MergeCursor(out.Cursor, snapshots.CursorCeiling())
		}
		if len(snapshots.Failures) > 0 {
			cursorHeld = true
		}
		done := !page.HasNextPage
		if err := e.saveProgress(ctx, kind, out, full, done); err != nil {
			return err
		}
		if done {
			out.Completed = true
			return nil
		}
		after = page.EndCursor
	}
}

func (e *Engine) truncateAtDeadline(ctx context.Context, kind core.ResourceKind, out *ResourceResult) {
	out.Truncated = true
	e.logger.WithContext(ctx).Warn("reconciliation run timeout reached", "resource", string(kind), "pages", out.Pages)
}

// runDeadlineReached separates the run deadline from upstream timeouts,
// which stay errors.
func runDeadlineReached(ctx context.Context, err error) bool {
	return errors.Is(err, core.ErrRunDeadline) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (e *Engine) saveProgress(ctx context.Context, kind core.ResourceKind, out *ResourceResult, full bool, done bool) error {
	now := e.now()
	in := core.SaveSyncStateInput{
		Resource:  kind,
		Cursor:    out.Cursor,
		LastRunAt: &now,
		Metadata: map[string]any{
			"full":  full,
			"pages": out.Pages,
		},
	}
	if done {
		in.LastSuccessAt = &now
	}
	state, err := e.states.Save(context.WithoutCancel(ctx), in)
	if err != nil {
		return fmt.Errorf("sync: save cursor for %s: %w", kind, err)
	}
	out.Cursor = state.Cursor
	return nil
}

func (e *Engine) purge(ctx context.Context, result *Result) error {
	var errs []error
	if e.config.DeletedRetention > 0 {
		purged, err := e.catalog.PurgeDeletedOlderThan(ctx, e.config.DeletedRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: purge deleted catalog rows: %w", err))
		}
		result.CatalogPurged = purged
	}
	if e.events != nil && e.config.WebhookRetention > 0 {
		purged, err := e.events.PurgeProcessedOlderThan(ctx, e.config.WebhookRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: purge processed webhook events: %w", err))
		}
		result.EventsPurged = purged
	}
	return errors.Join(errs...)
}

func (e *Engine) observer() core.Observer {
	return core.Observer{
		Logger:  e.logger,
		Metrics: e.metrics,
		Prefix:  "catalog.reconcile",
		Now:     e.now,
	}
}

func resolveKinds(requested []core.ResourceKind) ([]core.ResourceKind, error) {
	if len(requested) == 0 {
		return core.ResourceKinds(), nil
	}
	seen := map[core.ResourceKind]struct{}{}
	out := make([]core.ResourceKind, 0, len(requested))
	for _, raw := range requested {
		kind, err := core.ParseResourceKind(string(raw))
		if err != nil {
			return nil, core.ValidationError("unknown resource kind", map[string]any{"resource": string(raw)})
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		out = append(out, kind)
	}
	return out, nil
}
