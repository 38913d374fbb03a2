package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
)

func TestEngineResumesFromPersistedCursor(t *testing.T) {
	ctx := context.Background()
	start := "2024-05-01T00:00:00.000Z"
	states := newStubStates()
	states.rows[core.ResourceProducts] = core.SyncState{Resource: core.ResourceProducts, Cursor: start}

	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{
		productPage(true, "p1", "2024-05-01T00:00:00Z", "2024-05-02T00:00:00Z"),
		productPage(false, "", "2024-05-03T10:00:00Z"),
	}
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, states)

	result, err := engine.Run(ctx, RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	requests := source.requestsFor(core.ResourceProducts)
	if len(requests) != 2 {
		t.Fatalf("expected two page requests, got %d", len(requests))
	}
	for i, req := range requests {
		if req.UpdatedSince != start {
			t.Fatalf("request %d: expected filter at persisted cursor %q, got %q", i, start, req.UpdatedSince)
		}
	}
	if requests[0].After != "" || requests[1].After != "p1" {
		t.Fatalf("expected pagination tokens to chain, got %q then %q", requests[0].After, requests[1].After)
	}

	stored := states.rows[core.ResourceProducts]
	if stored.Cursor != "2024-05-03T10:00:00.000Z" {
		t.Fatalf("expected cursor advanced to page max, got %q", stored.Cursor)
	}
	if stored.Cursor < start {
		t.Fatalf("cursor moved backward: %q < %q", stored.Cursor, start)
	}
	if states.saves != 2 {
		t.Fatalf("expected cursor persisted after every page, got %d saves", states.saves)
	}
	if stored.LastSuccessAt == nil {
		t.Fatalf("expected last success timestamp after a complete walk")
	}

	products, ok := result.Resource(core.ResourceProducts)
	if !ok || !products.Completed || products.Pages != 2 {
		t.Fatalf("unexpected resource result %+v", products)
	}
	if result.Upsert.ProductsUpserted != 3 {
		t.Fatalf("expected 3 products upserted, got %d", result.Upsert.ProductsUpserted)
	}
}

func TestEngineFullRunIgnoresCursor(t *testing.T) {
	states := newStubStates()
	states.rows[core.ResourceProducts] = core.SyncState{Resource: core.ResourceProducts, Cursor: "2024-05-01T00:00:00.000Z"}
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{productPage(false, "", "2024-04-01T00:00:00Z")}
	source.pages[core.ResourceCollections] = []core.CatalogPage{collectionPage(false, "", "2024-04-02T00:00:00Z")}
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, states)

	if _, err := engine.Run(context.Background(), RunOptions{Full: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, kind := range core.ResourceKinds() {
		for _, req := range source.requestsFor(kind) {
			if req.UpdatedSince != "" {
				t.Fatalf("%s: expected unfiltered walk, got %q", kind, req.UpdatedSince)
			}
		}
	}
	if states.gets != 0 {
		t.Fatalf("expected full run not to read cursors, got %d reads", states.gets)
	}
	if got := states.rows[core.ResourceProducts].Cursor; got != "2024-05-01T00:00:00.000Z" {
		t.Fatalf("expected stored cursor to stay monotonic after full walk, got %q", got)
	}
	if got := states.rows[core.ResourceCollections].Cursor; got != "2024-04-02T00:00:00.000Z" {
		t.Fatalf("unexpected collections cursor %q", got)
	}
}

func TestEngineUsesReplaceSemantics(t *testing.T) {
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{productPage(false, "", "2024-04-01T00:00:00Z")}
	source.pages[core.ResourceCollections] = []core.CatalogPage{collectionPage(false, "", "2024-04-02T00:00:00Z")}
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, newStubStates())

	if _, err := engine.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(catalog.upserts) != 2 {
		t.Fatalf("expected two upserts, got %d", len(catalog.upserts))
	}
	products, collections := catalog.upserts[0], catalog.upserts[1]
	if !products.ReplaceVariants || !products.ReplaceAssociations || products.Source != core.UpsertSourceReconcile {
		t.Fatalf("expected full replace for product pages, got %+v", products)
	}
	if !collections.ReplaceVariants || collections.ReplaceAssociations {
		t.Fatalf("expected no association replace for collection pages, got %+v", collections)
	}
}

func TestEngineKeepsProgressWhenUpstreamFails(t *testing.T) {
	states := newStubStates()
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{productPage(true, "p1", "2024-05-02T00:00:00Z")}
	source.failAt[core.ResourceProducts] = 1
	source.pages[core.ResourceCollections] = []core.CatalogPage{collectionPage(false, "", "2024-05-05T00:00:00Z")}
	engine := newTestEngine(t, source, &stubCatalog{}, states)

	result, err := engine.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatalf("expected upstream failure to be reported")
	}
	if !core.IsUpstreamError(err) {
		t.Fatalf("expected upstream error in chain, got %v", err)
	}
	if got := states.rows[core.ResourceProducts].Cursor; got != "2024-05-02T00:00:00.000Z" {
		t.Fatalf("expected first page progress retained, got %q", got)
	}
	if states.rows[core.ResourceProducts].LastSuccessAt != nil {
		t.Fatalf("expected no success timestamp for an aborted walk")
	}
	collections, _ := result.Resource(core.ResourceCollections)
	if !collections.Completed {
		t.Fatalf("expected collections walk to continue after products failure")
	}
	products, _ := result.Resource(core.ResourceProducts)
	if products.Error == "" || products.Pages != 1 {
		t.Fatalf("unexpected products result %+v", products)
	}
}

func TestEngineSkipsKindWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	locker := core.NewMemoryLocker()
	held, err := locker.Acquire(ctx, core.LeaseKey(core.ResourceProducts), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Unlock(ctx)

	source := newStubSource()
	source.pages[core.ResourceCollections] = []core.CatalogPage{collectionPage(false, "", "2024-05-05T00:00:00Z")}
	engine := newTestEngine(t, source, &stubCatalog{}, newStubStates(), WithLocker(locker))

	result, err := engine.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if !products.Skipped {
		t.Fatalf("expected products walk to be skipped")
	}
	if len(source.requestsFor(core.ResourceProducts)) != 0 {
		t.Fatalf("expected no product fetches while lease is held")
	}

	if _, err := locker.Acquire(ctx, core.LeaseKey(core.ResourceCollections), time.Minute); err != nil {
		t.Fatalf("expected collections lease released after run: %v", err)
	}
}

func TestEngineStopsAtPageBound(t *testing.T) {
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{
		productPage(true, "p1", "2024-05-01T00:00:00Z"),
		productPage(true, "p2", "2024-05-02T00:00:00Z"),
		productPage(false, "", "2024-05-03T00:00:00Z"),
	}
	states := newStubStates()
	engine := newTestEngine(t, source, &stubCatalog{}, states, WithConfig(Config{PageSize: 500, MaxPageSize: 100, MaxPagesPerRun: 2}))

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if !products.Truncated || products.Completed || products.Pages != 2 {
		t.Fatalf("expected truncated walk after two pages, got %+v", products)
	}
	if got := states.rows[core.ResourceProducts].Cursor; got != "2024-05-02T00:00:00.000Z" {
		t.Fatalf("expected progress persisted up to the bound, got %q", got)
	}
	for _, req := range source.requestsFor(core.ResourceProducts) {
		if req.First != 100 {
			t.Fatalf("expected page size clamped to 100, got %d", req.First)
		}
	}
}

func TestEngineCountsMappingFailures(t *testing.T) {
	source := newStubSource()
	page := productPage(false, "", "2024-05-01T00:00:00Z")
	page.Nodes = append(page.Nodes, json.RawMessage(`{"id":"gid://shopify/Product/99","updatedAt":"not-a-time"}`))
	source.pages[core.ResourceProducts] = []core.CatalogPage{page}
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, newStubStates())

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if products.MappingFailures != 1 {
		t.Fatalf("expected one mapping failure, got %d", products.MappingFailures)
	}
	if len(catalog.upserts) != 1 || len(catalog.upserts[0].Products) != 1 {
		t.Fatalf("expected the valid node to be upserted")
	}
}

func TestEngineHoldsCursorBeforeFailedNode(t *testing.T) {
	source := newStubSource()
	first := productPage(true, "p1", "2024-05-01T00:00:00Z")
	first.Nodes = append(first.Nodes,
		json.RawMessage(`{"id":"gid://shopify/Product/77","updatedAt":"2024-05-02T00:00:00Z","variants":{"edges":[{"node":{"price":"1.00"}}]}}`),
	)
	first.Nodes = append(first.Nodes, productPage(false, "", "2024-05-03T00:00:00Z").Nodes...)
	source.pages[core.ResourceProducts] = []core.CatalogPage{
		first,
		productPage(false, "", "2024-05-04T00:00:00Z"),
	}
	states := newStubStates()
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, states)

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if !products.Completed || products.MappingFailures != 1 || products.Pages != 2 {
		t.Fatalf("unexpected resource result %+v", products)
	}
	if got := states.rows[core.ResourceProducts].Cursor; got != "2024-05-01T00:00:00.000Z" {
		t.Fatalf("expected cursor held below the failed node, got %q", got)
	}
	if result.Upsert.ProductsUpserted != 3 {
		t.Fatalf("expected valid nodes after the failure to be upserted, got %d", result.Upsert.ProductsUpserted)
	}
}

func TestEngineCountsPartialProducts(t *testing.T) {
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{{
		Nodes: []json.RawMessage{json.RawMessage(`{
			"id":"gid://shopify/Product/500",
			"title":"Wide",
			"updatedAt":"2024-06-01T00:00:00Z",
			"variants":{"pageInfo":{"hasNextPage":true},"edges":[{"node":{"id":"gid://shopify/ProductVariant/501","price":"3.00"}}]},
			"collections":{"pageInfo":{"hasNextPage":false},"edges":[{"node":{"id":"gid://shopify/Collection/7"}}]}
		}`)},
	}}
	catalog := &stubCatalog{}
	engine := newTestEngine(t, source, catalog, newStubStates())

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if products.PartialProducts != 1 {
		t.Fatalf("expected one partial product, got %+v", products)
	}
	if len(catalog.upserts) != 1 || len(catalog.upserts[0].Products) != 1 {
		t.Fatalf("expected one product upsert, got %#v", catalog.upserts)
	}
	product := catalog.upserts[0].Products[0]
	if !product.VariantsPartial || product.CollectionsPartial {
		t.Fatalf("expected only variants to be marked partial, got %+v", product)
	}
}

func TestEngineTruncatesWhenDeadlineHitsDuringFetch(t *testing.T) {
	source := newStubSource()
	source.pages[core.ResourceProducts] = []core.CatalogPage{
		productPage(true, "p1", "2024-05-01T00:00:00Z"),
		productPage(false, "", "2024-05-02T00:00:00Z"),
	}
	source.onFetch = func(ctx context.Context, req core.CatalogPageRequest) error {
		if req.After == "" {
			return nil
		}
		<-ctx.Done()
		return core.UpstreamError(ctx.Err(), "fetch page", nil)
	}
	states := newStubStates()
	engine := newTestEngine(t, source, &stubCatalog{}, states, WithConfig(Config{RunTimeout: 50 * time.Millisecond}))

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("expected deadline to truncate the walk, got %v", err)
	}
	products, _ := result.Resource(core.ResourceProducts)
	if !products.Truncated || products.Completed || products.Error != "" || products.Pages != 1 {
		t.Fatalf("expected truncated walk after one page, got %+v", products)
	}
	if got := states.rows[core.ResourceProducts].Cursor; got != "2024-05-01T00:00:00.000Z" {
		t.Fatalf("expected first page progress retained, got %q", got)
	}
}

func TestEngineTruncatesWhenRateWaitExceedsDeadline(t *testing.T) {
	source := newStubSource()
	source.onFetch = func(context.Context, core.CatalogPageRequest) error {
		return fmt.Errorf("providers/shopify: %w: rate: Wait(n=1) would exceed context deadline", core.ErrRunDeadline)
	}
	engine := newTestEngine(t, source, &stubCatalog{}, newStubStates(), WithConfig(Config{RunTimeout: time.Minute}))

	result, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{core.ResourceProducts}})
	if err != nil {
		t.Fatalf("expected rate wait past the deadline to truncate, got %v", err)
	}
	if products, _ := result.Resource(core.ResourceProducts); !products.Truncated || products.Pages != 0 {
		t.Fatalf("expected truncated walk without pages, got %+v", products)
	}
}

func TestEnginePurgesAfterWalks(t *testing.T) {
	catalog := &stubCatalog{purged: 3}
	events := &stubEvents{purged: 5}
	engine := newTestEngine(t, newStubSource(), catalog, newStubStates(),
		WithEventStore(events),
		WithConfig(Config{DeletedRetention: 14 * 24 * time.Hour, WebhookRetention: 7 * 24 * time.Hour}),
	)

	result, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if catalog.purgeAge != 14*24*time.Hour || events.purgeAge != 7*24*time.Hour {
		t.Fatalf("unexpected purge ages %s / %s", catalog.purgeAge, events.purgeAge)
	}
	if result.CatalogPurged != 3 || result.EventsPurged != 5 {
		t.Fatalf("unexpected purge counts %+v", result)
	}
}

func TestEngineRejectsUnknownResource(t *testing.T) {
	engine := newTestEngine(t, newStubSource(), &stubCatalog{}, newStubStates())
	if _, err := engine.Run(context.Background(), RunOptions{Resources: []core.ResourceKind{"orders"}}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPageSizeFor(t *testing.T) {
	cases := []struct {
		requested, max, want int
	}{
		{0, 100, DefaultPageSize},
		{-3, 100, DefaultPageSize},
		{1, 100, 1},
		{250, 100, 100},
		{75, 0, 75},
		{80, 25, 25},
	}
	for _, tc := range cases {
		if got := PageSizeFor(tc.requested, tc.max); got != tc.want {
			t.Fatalf("PageSizeFor(%d, %d): expected %d, got %d", tc.requested, tc.max, tc.want, got)
		}
	}
}

func newTestEngine(t *testing.T, source core.CatalogSource, catalog core.CatalogStore, states core.SyncStateStore, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(source, catalog, states, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

var nodeSeq int

func productPage(hasNext bool, endCursor string, updatedAts ...string) core.CatalogPage {
	page := core.CatalogPage{HasNextPage: hasNext, EndCursor: endCursor}
	for _, updatedAt := range updatedAts {
		nodeSeq++
		page.Nodes = append(page.Nodes, json.RawMessage(fmt.Sprintf(
			`{"id":"gid://shopify/Product/%d","title":"P","updatedAt":%q,"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/%d","price":"10.00"}}]}}`,
			nodeSeq, updatedAt, nodeSeq,
		)))
	}
	return page
}

func collectionPage(hasNext bool, endCursor string, updatedAts ...string) core.CatalogPage {
	page := core.CatalogPage{HasNextPage: hasNext, EndCursor: endCursor}
	for _, updatedAt := range updatedAts {
		nodeSeq++
		page.Nodes = append(page.Nodes, json.RawMessage(fmt.Sprintf(
			`{"id":"gid://shopify/Collection/%d","title":"C","updatedAt":%q}`, nodeSeq, updatedAt,
		)))
	}
	return page
}

type stubSource struct {
	mu       stdsync.Mutex
	onFetch  func(ctx context.Context, req core.CatalogPageRequest) error
	pages    map[core.ResourceKind][]core.CatalogPage
	failAt   map[core.ResourceKind]int
	requests []core.CatalogPageRequest
	served   map[core.ResourceKind]int
}

func newStubSource() *stubSource {
	return &stubSource{
		pages:  map[core.ResourceKind][]core.CatalogPage{},
		failAt: map[core.ResourceKind]int{},
		served: map[core.ResourceKind]int{},
	}
}

func (s *stubSource) FetchPage(ctx context.Context, req core.CatalogPageRequest) (core.CatalogPage, error) {
	if s.onFetch != nil {
		if err := s.onFetch(ctx, req); err != nil {
			return core.CatalogPage{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	index := s.served[req.Resource]
	s.served[req.Resource] = index + 1
	if fail, ok := s.failAt[req.Resource]; ok && fail == index {
		return core.CatalogPage{}, core.UpstreamError(errors.New("boom"), "upstream down", nil)
	}
	pages := s.pages[req.Resource]
	if index >= len(pages) {
		return core.CatalogPage{}, nil
	}
	return pages[index], nil
}

func (s *stubSource) requestsFor(kind core.ResourceKind) []core.CatalogPageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CatalogPageRequest
	for _, req := range s.requests {
		if req.Resource == kind {
			out = append(out, req)
		}
	}
	return out
}

type stubStates struct {
	rows  map[core.ResourceKind]core.SyncState
	gets  int
	saves int
}

func newStubStates() *stubStates {
	return &stubStates{rows: map[core.ResourceKind]core.SyncState{}}
}

func (s *stubStates) Get(_ context.Context, kind core.ResourceKind) (core.SyncState, error) {
	s.gets++
	state, ok := s.rows[kind]
	if !ok {
		return core.SyncState{}, core.ErrSyncStateNotFound
	}
	return state, nil
}

func (s *stubStates) Save(_ context.Context, in core.SaveSyncStateInput) (core.SyncState, error) {
	s.saves++
	state := s.rows[in.Resource]
	state.Resource = in.Resource
	state.Cursor = core.MergeCursor(state.Cursor, in.Cursor)
	if in.LastRunAt != nil {
		state.LastRunAt = in.LastRunAt
	}
	if in.LastSuccessAt != nil {
		state.LastSuccessAt = in.LastSuccessAt
	}
	s.rows[in.Resource] = state
	return state, nil
}

type stubCatalog struct {
	upserts  []core.UpsertCatalogInput
	purged   int
	purgeAge time.Duration
}

func (s *stubCatalog) UpsertCatalogSnapshot(_ context.Context, in core.UpsertCatalogInput) (core.UpsertCatalogResult, error) {
	s.upserts = append(s.upserts, in)
	return core.UpsertCatalogResult{
		ProductsUpserted:    len(in.Products),
		CollectionsUpserted: len(in.Collections),
	}, nil
}

func (s *stubCatalog) DeleteProductByExternalID(context.Context, string, time.Time) error {
	return nil
}

func (s *stubCatalog) DeleteCollectionByExternalID(context.Context, string, time.Time) error {
	return nil
}

func (s *stubCatalog) PurgeDeletedOlderThan(_ context.Context, age time.Duration) (int, error) {
	s.purgeAge = age
	return s.purged, nil
}

type stubEvents struct {
	core.WebhookEventStore
	purged   int
	purgeAge time.Duration
}

func (s *stubEvents) PurgeProcessedOlderThan(_ context.Context, age time.Duration) (int, error) {
	s.purgeAge = age
	return s.purged, nil
}
