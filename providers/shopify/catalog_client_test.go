package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
)

type recordedQuery struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	Token         string         `json:"-"`
}

type graphQLStub struct {
	mu        sync.Mutex
	requests  []recordedQuery
	responses []string
	status    int
}

func (s *graphQLStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req recordedQuery
	_ = json.Unmarshal(body, &req)
	req.Token = r.Header.Get(HeaderAccessToken)

	s.mu.Lock()
	index := len(s.requests)
	s.requests = append(s.requests, req)
	response := `{"data":{}}`
	if index < len(s.responses) {
		response = s.responses[index]
	}
	status := s.status
	s.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "3")
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func newTestClient(t *testing.T, stub *graphQLStub, opts ...ClientOption) *CatalogClient {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	client, err := NewCatalogClient(ClientConfig{
		Endpoint:          server.URL,
		AccessToken:       "shpat_test",
		RequestsPerSecond: 1000,
		Burst:             10,
		HTTPClient:        server.Client(),
	}, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCatalogClientFetchesProductPage(t *testing.T) {
	stub := &graphQLStub{responses: []string{`{
		"data": {"products": {
			"pageInfo": {"hasNextPage": true, "endCursor": "cursor-1"},
			"edges": [
				{"node": {"id": "gid://shopify/Product/1", "title": "One", "updatedAt": "2024-05-01T00:00:00Z"}},
				{"node": {"id": "gid://shopify/Product/2", "title": "Two", "updatedAt": "2024-05-02T00:00:00Z"}}
			]
		}},
		"extensions": {"cost": {"requestedQueryCost": 52, "actualQueryCost": 12,
			"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 988, "restoreRate": 50}}}
	}`}}
	client := newTestClient(t, stub)

	page, err := client.FetchPage(context.Background(), core.CatalogPageRequest{
		Resource:     core.ResourceProducts,
		First:        500,
		After:        "cursor-0",
		UpdatedSince: "2024-04-30T12:00:00.000Z",
	})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if !page.HasNextPage || page.EndCursor != "cursor-1" {
		t.Fatalf("unexpected page info: %+v", page)
	}
	if len(page.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(page.Nodes))
	}

	if len(stub.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(stub.requests))
	}
	req := stub.requests[0]
	if req.Token != "shpat_test" {
		t.Fatalf("expected access token header, got %q", req.Token)
	}
	if req.OperationName != "CatalogProducts" {
		t.Fatalf("unexpected operation %q", req.OperationName)
	}
	if first, _ := req.Variables["first"].(float64); first != MaxPageSize {
		t.Fatalf("expected page size clamped to %d, got %v", MaxPageSize, req.Variables["first"])
	}
	if req.Variables["after"] != "cursor-0" {
		t.Fatalf("expected after cursor, got %v", req.Variables["after"])
	}
	if req.Variables["query"] != "updated_at:>='2024-04-30T12:00:00.000Z'" {
		t.Fatalf("unexpected filter %v", req.Variables["query"])
	}
}

func TestProductsQueryRequestsNestedPageInfo(t *testing.T) {
	query, err := queryFor(core.ResourceProducts)
	if err != nil {
		t.Fatalf("query for products: %v", err)
	}
	for _, connection := range []string{"variants(first: 100) {", "collections(first: 50) {"} {
		idx := strings.Index(query.text, connection)
		if idx < 0 {
			t.Fatalf("expected %q in products query", connection)
		}
		rest := strings.TrimSpace(query.text[idx+len(connection):])
		if !strings.HasPrefix(rest, "pageInfo { hasNextPage }") {
			t.Fatalf("expected %q to request pageInfo, got %q", connection, rest[:min(40, len(rest))])
		}
	}
}

func TestRateWaitErrorMarksRunDeadline(t *testing.T) {
	limiterErr := errors.New("rate: Wait(n=1) would exceed context deadline")

	withDeadline, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	if err := rateWaitError(withDeadline, limiterErr); !errors.Is(err, core.ErrRunDeadline) {
		t.Fatalf("expected run deadline marker, got %v", err)
	}
	if err := rateWaitError(context.Background(), limiterErr); err != limiterErr {
		t.Fatalf("expected limiter error without a deadline, got %v", err)
	}
	canceled, stop := context.WithCancel(context.Background())
	stop()
	if err := rateWaitError(canceled, limiterErr); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestCatalogClientOmitsFilterForFullWalk(t *testing.T) {
	stub := &graphQLStub{responses: []string{`{"data":{"collections":{
		"pageInfo":{"hasNextPage":false,"endCursor":null},
		"edges":[{"node":{"id":"gid://shopify/Collection/9","updatedAt":"2024-05-01T00:00:00Z"}}]
	}}}`}}
	client := newTestClient(t, stub)

	page, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceCollections})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if page.HasNextPage || len(page.Nodes) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	req := stub.requests[0]
	if _, ok := req.Variables["query"]; ok {
		t.Fatalf("expected no filter, got %v", req.Variables["query"])
	}
	if _, ok := req.Variables["after"]; ok {
		t.Fatalf("expected no after cursor, got %v", req.Variables["after"])
	}
	if first, _ := req.Variables["first"].(float64); first != defaultPageSize {
		t.Fatalf("expected default page size, got %v", req.Variables["first"])
	}
}

func TestCatalogClientMapsThrottledErrors(t *testing.T) {
	stub := &graphQLStub{responses: []string{`{
		"errors": [{"message": "Throttled", "extensions": {"code": "THROTTLED"}}],
		"extensions": {"cost": {"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 0, "restoreRate": 50}}}
	}`}}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration
	client := newTestClient(t, stub,
		WithClientClock(func() time.Time { return now }),
		WithClientSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	_, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if err == nil {
		t.Fatalf("expected throttled error")
	}
	if !core.IsUpstreamError(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	_, _ = client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if len(slept) != 1 {
		t.Fatalf("expected client to pause before the next call, slept %v", slept)
	}
	if slept[0] != 4*time.Second {
		t.Fatalf("expected pause derived from restore rate, got %s", slept[0])
	}
}

func TestCatalogClientMapsGraphQLErrors(t *testing.T) {
	stub := &graphQLStub{responses: []string{`{"errors":[{"message":"Field 'bogus' doesn't exist"}]}`}}
	client := newTestClient(t, stub)

	_, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if !core.IsUpstreamError(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCatalogClientHonorsRetryAfter(t *testing.T) {
	stub := &graphQLStub{status: http.StatusTooManyRequests, responses: []string{`{}`}}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration
	client := newTestClient(t, stub,
		WithClientClock(func() time.Time { return now }),
		WithClientSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	_, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if !core.IsUpstreamError(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	_, _ = client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if len(slept) != 1 || slept[0] != 3*time.Second {
		t.Fatalf("expected 3s pause from Retry-After, got %v", slept)
	}
}

func TestCatalogClientRejectsMalformedData(t *testing.T) {
	stub := &graphQLStub{responses: []string{`{"data":{"somethingElse":{}}}`}}
	client := newTestClient(t, stub)

	_, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: core.ResourceProducts})
	if !core.IsUpstreamError(err) {
		t.Fatalf("expected upstream error for missing connection, got %v", err)
	}
}

func TestCatalogClientRejectsUnknownResource(t *testing.T) {
	client := newTestClient(t, &graphQLStub{})
	if _, err := client.FetchPage(context.Background(), core.CatalogPageRequest{Resource: "orders"}); err == nil {
		t.Fatalf("expected invalid resource error")
	}
	if len(client.graphql.Headers) == 0 {
		t.Fatalf("expected adapter headers to carry the access token")
	}
}

func TestNewCatalogClientRequiresToken(t *testing.T) {
	if _, err := NewCatalogClient(ClientConfig{ShopDomain: "demo"}); err == nil {
		t.Fatalf("expected missing token error")
	}
	if _, err := NewCatalogClient(ClientConfig{AccessToken: "x"}); err == nil {
		t.Fatalf("expected missing shop error")
	}
}
