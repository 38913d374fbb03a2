package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/transport"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	HeaderAccessToken = "X-Shopify-Access-Token"

	MaxPageSize         = 100
	defaultPageSize     = 50
	defaultRequestsRate = 2
	defaultBurst        = 4
	// nextQueryCost is the budget reserved for the following page when
	// deciding whether to pause on the throttle bucket.
	nextQueryCost = 200
)

type ClientConfig struct {
	ShopDomain        string
	AccessToken       string
	APIVersion        string
	Endpoint          string
	RequestsPerSecond float64
	Burst             int
	MaxPageSize       int
	HTTPClient        transport.HTTPDoer
}

// CatalogClient reads product and collection pages from the Admin GraphQL
// API. Calls are paced by a token bucket and by the cost budget Shopify
// reports on every response.
type CatalogClient struct {
	graphql     *transport.GraphQLAdapter
	limiter     *rate.Limiter
	maxPageSize int
	logger      core.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	notBefore time.Time
}

type ClientOption func(*CatalogClient)

func WithClientLogger(logger core.Logger) ClientOption {
	return func(c *CatalogClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClientClock(now func() time.Time) ClientOption {
	return func(c *CatalogClient) {
		if now != nil {
			c.now = now
		}
	}
}

func WithClientSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *CatalogClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewCatalogClient(cfg ClientConfig, opts ...ClientOption) (*CatalogClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		shop, err := NormalizeShopDomain(cfg.ShopDomain)
		if err != nil {
			return nil, err
		}
		endpoint, err = AdminGraphQLEndpoint(shop, cfg.APIVersion)
		if err != nil {
			return nil, err
		}
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, core.ValidationError("shopify access token is required", nil)
	}

	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = defaultRequestsRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	maxPage := cfg.MaxPageSize
	if maxPage <= 0 || maxPage > MaxPageSize {
		maxPage = MaxPageSize
	}

	adapter := transport.NewGraphQLAdapter(endpoint, cfg.HTTPClient)
	adapter.Headers[HeaderAccessToken] = token

	client := &CatalogClient{
		graphql:     adapter,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		maxPageSize: maxPage,
		logger:      glog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FetchPage returns one page of raw nodes for the requested resource.
// A non-empty UpdatedSince becomes an inclusive updated_at filter.
func (c *CatalogClient) FetchPage(ctx context.Context, req core.CatalogPageRequest) (core.CatalogPage, error) {
	if c == nil || c.graphql == nil {
		return core.CatalogPage{}, fmt.Errorf("providers/shopify: catalog client is not configured")
	}
	query, err := queryFor(req.Resource)
	if err != nil {
		return core.CatalogPage{}, err
	}

	variables := map[string]any{"first": c.clampPageSize(req.First)}
	if after := strings.TrimSpace(req.After); after != "" {
		variables["after"] = after
	}
	if filter := UpdatedSinceFilter(req.UpdatedSince); filter != "" {
		variables["query"] = filter
	}
	metadata := map[string]any{
		"resource":  string(req.Resource),
		"operation": query.operation,
	}

	if err := c.waitForBudget(ctx); err != nil {
		return core.CatalogPage{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return core.CatalogPage{}, rateWaitError(ctx, err)
	}

	response, err := c.graphql.Execute(ctx, transport.GraphQLRequest{
		Query:         query.text,
		OperationName: query.operation,
		Variables:     variables,
	})
	if err != nil {
		if delay, ok := parseRetryAfter(response.Headers); ok {
			c.deferUntil(c.now().Add(delay))
		} else if response.StatusCode == http.StatusTooManyRequests {
			c.deferUntil(c.now().Add(defaultThrottleBackoff))
		}
		return core.CatalogPage{}, core.UpstreamError(err, "shopify catalog request failed", metadata)
	}

	if status, ok := ParseThrottleStatus(response.Extensions); ok {
		if wait := status.Wait(nextQueryCost); wait > 0 {
			c.deferUntil(c.now().Add(wait))
		}
	}

	if len(response.Errors) > 0 {
		if isThrottled(response.Errors) {
			c.deferUntil(c.now().Add(defaultThrottleBackoff))
			metadata["code"] = throttledCode
			return core.CatalogPage{}, core.UpstreamError(
				fmt.Errorf("providers/shopify: query throttled"),
				"shopify catalog query throttled",
				metadata,
			)
		}
		metadata["errors"] = graphQLMessages(response.Errors)
		return core.CatalogPage{}, core.UpstreamError(
			fmt.Errorf("providers/shopify: %s", strings.Join(graphQLMessages(response.Errors), "; ")),
			"shopify catalog query returned errors",
			metadata,
		)
	}

	page, err := decodeConnection(response.Data, query.connection)
	if err != nil {
		return core.CatalogPage{}, core.UpstreamError(err, "shopify catalog response malformed", metadata)
	}
	c.logger.WithContext(ctx).Debug("shopify catalog page fetched",
		"resource", string(req.Resource),
		"nodes", len(page.Nodes),
		"has_next_page", page.HasNextPage,
	)
	return page, nil
}

func (c *CatalogClient) clampPageSize(first int) int {
	if first <= 0 {
		first = defaultPageSize
	}
	if first > c.maxPageSize {
		first = c.maxPageSize
	}
	return first
}

func (c *CatalogClient) waitForBudget(ctx context.Context) error {
	c.mu.Lock()
	notBefore := c.notBefore
	c.mu.Unlock()
	wait := notBefore.Sub(c.now())
	if wait <= 0 {
		return nil
	}
	c.logger.WithContext(ctx).Info("shopify throttle budget low, pausing", "wait_ms", wait.Milliseconds())
	return c.sleep(ctx, wait)
}

func (c *CatalogClient) deferUntil(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at.After(c.notBefore) {
		c.notBefore = at
	}
}

func decodeConnection(data json.RawMessage, connection string) (core.CatalogPage, error) {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return core.CatalogPage{}, fmt.Errorf("providers/shopify: response data is empty")
	}
	root := gjson.GetBytes(data, connection)
	if !root.IsObject() {
		return core.CatalogPage{}, fmt.Errorf("providers/shopify: connection %q missing from response", connection)
	}

	page := core.CatalogPage{
		HasNextPage: root.Get("pageInfo.hasNextPage").Bool(),
		EndCursor:   root.Get("pageInfo.endCursor").String(),
	}
	nodes := root.Get("edges.#.node")
	if !root.Get("edges").Exists() {
		nodes = root.Get("nodes")
	}
	for _, node := range nodes.Array() {
		if !node.IsObject() {
			continue
		}
		page.Nodes = append(page.Nodes, json.RawMessage(node.Raw))
	}
	if page.HasNextPage && strings.TrimSpace(page.EndCursor) == "" {
		return core.CatalogPage{}, fmt.Errorf("providers/shopify: connection %q has next page without end cursor", connection)
	}
	return page, nil
}

func graphQLMessages(errs []transport.GraphQLError) []string {
	out := make([]string, 0, len(errs))
	for _, entry := range errs {
		if message := strings.TrimSpace(entry.Message); message != "" {
			out = append(out, message)
		}
	}
	return out
}

// rateWaitError reports a limiter wait refused because the next token comes
// after the context deadline as core.ErrRunDeadline.
func rateWaitError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("providers/shopify: %w: %v", core.ErrRunDeadline, err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.CatalogSource = (*CatalogClient)(nil)
