package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const KindGraphQL = "graphql"

type GraphQLAdapter struct {
	Endpoint string
	Headers  map[string]string
	REST     *RESTAdapter
}

type GraphQLRequest struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Headers       map[string]string
}

// GraphQLError is one entry of the response "errors" array. Code is read from
// extensions.code when the server sets it.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Code() string {
	if len(e.Extensions) == 0 {
		return ""
	}
	code, _ := e.Extensions["code"].(string)
	return strings.TrimSpace(code)
}

type GraphQLResponse struct {
	StatusCode int
	Headers    map[string]string
	Data       json.RawMessage
	Errors     []GraphQLError
	Extensions json.RawMessage
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		Headers:  map[string]string{},
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

// Execute posts one GraphQL operation and decodes the response envelope.
// Non-2xx statuses are returned as errors alongside the status and headers;
// GraphQL level errors are left on the response for the caller to classify.
func (a *GraphQLAdapter) Execute(ctx context.Context, req GraphQLRequest) (GraphQLResponse, error) {
	if a == nil || a.REST == nil {
		return GraphQLResponse{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	if a.Endpoint == "" {
		return GraphQLResponse{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return GraphQLResponse{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": a.Endpoint},
		)
	}

	payload := map[string]any{"query": query}
	if operationName := strings.TrimSpace(req.OperationName); operationName != "" {
		payload["operationName"] = operationName
	}
	if len(req.Variables) > 0 {
		payload["variables"] = req.Variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return GraphQLResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": a.Endpoint},
		)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range a.Headers {
		headers[key] = value
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	response, err := a.REST.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     a.Endpoint,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return GraphQLResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: graphql request failed",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "endpoint": a.Endpoint},
		)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		category := goerrors.CategoryExternal
		if response.StatusCode == http.StatusTooManyRequests {
			category = goerrors.CategoryRateLimit
		}
		return GraphQLResponse{StatusCode: response.StatusCode, Headers: response.Headers}, transportError(
			fmt.Sprintf("transport: graphql endpoint returned status %d", response.StatusCode),
			category,
			http.StatusBadGateway,
			map[string]any{
				"adapter":     KindGraphQL,
				"endpoint":    a.Endpoint,
				"status_code": response.StatusCode,
			},
		)
	}

	var envelope struct {
		Data       json.RawMessage `json:"data"`
		Errors     []GraphQLError  `json:"errors"`
		Extensions json.RawMessage `json:"extensions"`
	}
	if err := json.Unmarshal(response.Body, &envelope); err != nil {
		return GraphQLResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql response",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "endpoint": a.Endpoint},
		)
	}
	return GraphQLResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Headers,
		Data:       envelope.Data,
		Errors:     envelope.Errors,
		Extensions: envelope.Extensions,
	}, nil
}

// Do runs a GraphQL operation described by metadata keys "query",
// "operation_name" and "variables", falling back to the body for the query.
func (a *GraphQLAdapter) Do(ctx context.Context, req Request) (Response, error) {
	query, ok := readGraphQLQuery(req)
	if !ok {
		return Response{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	variables, _ := req.Metadata["variables"].(map[string]any)
	operationName, _ := req.Metadata["operation_name"].(string)

	result, err := a.Execute(ctx, GraphQLRequest{
		Query:         query,
		OperationName: operationName,
		Variables:     variables,
		Headers:       req.Headers,
	})
	if err != nil {
		return Response{}, err
	}
	body, err := json.Marshal(map[string]any{"data": result.Data, "errors": result.Errors})
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryInternal,
			"transport: encode graphql response",
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	return Response{
		StatusCode: result.StatusCode,
		Headers:    result.Headers,
		Body:       body,
		Metadata:   map[string]any{"kind": KindGraphQL},
	}, nil
}

func readGraphQLQuery(req Request) (string, bool) {
	if req.Metadata != nil {
		if query, ok := req.Metadata["query"].(string); ok && strings.TrimSpace(query) != "" {
			return strings.TrimSpace(query), true
		}
	}
	query := strings.TrimSpace(string(req.Body))
	if query == "" {
		return "", false
	}
	return query, true
}

var _ Adapter = (*GraphQLAdapter)(nil)
