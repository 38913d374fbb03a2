package catalogsync

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	catalogcommand "github.com/goliatone/go-catalog-sync/command"
	"github.com/goliatone/go-catalog-sync/core"
	catalogquery "github.com/goliatone/go-catalog-sync/query"
	syncengine "github.com/goliatone/go-catalog-sync/sync"
	"github.com/goliatone/go-catalog-sync/webhooks"
	gocmd "github.com/goliatone/go-command"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	RouteSyncRun      = "/sync/run"
	RouteSyncState    = "/sync/state/{kind}"
	RouteWebhookEvent = "/webhooks/events/{id}"
	RouteHealth       = "/healthz"
)

// Handler returns the HTTP surface wrapped in otelhttp server spans.
func (p *Pipeline) Handler() http.Handler {
	return otelhttp.NewHandler(p, p.config.ServiceName)
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.routes.ServeHTTP(w, r)
}

func (p *Pipeline) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(p.config.Webhook.Path, webhooks.NewHTTPHandler(p.receiver))
	mux.HandleFunc("POST "+RouteSyncRun, p.handleSyncRun)
	mux.HandleFunc("GET "+RouteSyncState, p.handleSyncState)
	mux.HandleFunc("GET "+RouteWebhookEvent, p.handleWebhookEvent)
	mux.HandleFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type runResponse struct {
	Full          bool                  `json:"full"`
	Pages         int                   `json:"pages"`
	CatalogPurged int                   `json:"catalog_purged"`
	EventsPurged  int                   `json:"events_purged"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	Resources     []runResourceResponse `json:"resources"`
	Error         string                `json:"error,omitempty"`
}

type runResourceResponse struct {
	Resource        core.ResourceKind `json:"resource"`
	StartCursor     string            `json:"start_cursor,omitempty"`
	Cursor          string            `json:"cursor,omitempty"`
	Pages           int               `json:"pages"`
	Products        int               `json:"products"`
	Variants        int               `json:"variants"`
	Collections     int               `json:"collections"`
	MappingFailures int               `json:"mapping_failures"`
	Completed       bool              `json:"completed"`
	Truncated       bool              `json:"truncated"`
	Skipped         bool              `json:"skipped"`
	Error           string            `json:"error,omitempty"`
}

// handleSyncRun runs a reconciliation inline. ?full=true ignores stored
// cursors; repeated ?resource= limits the run to the named kinds.
func (p *Pipeline) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	msg := catalogcommand.RunReconciliationMessage{}
	if raw := strings.TrimSpace(r.URL.Query().Get("full")); raw != "" {
		full, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, core.ValidationError("full must be a boolean", map[string]any{"full": raw}))
			return
		}
		msg.Full = full
	}
	for _, resource := range r.URL.Query()["resource"] {
		msg.Resources = append(msg.Resources, core.ResourceKind(strings.TrimSpace(resource)))
	}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	collector := gocmd.NewResult[syncengine.Result]()
	ctx := gocmd.ContextWithResult(context.WithoutCancel(r.Context()), collector)
	runErr := p.commands.RunReconciliation.Execute(ctx, msg)
	result, ok := collector.Load()
	if !ok {
		if runErr == nil {
			runErr = core.InternalError(nil, "reconciliation produced no result")
		}
		writeError(w, runErr)
		return
	}

	out := newRunResponse(result)
	status := http.StatusOK
	if runErr != nil {
		out.Error = runErr.Error()
		status = core.HTTPStatus(runErr)
	}
	writeJSON(w, status, out)
}

func (p *Pipeline) handleSyncState(w http.ResponseWriter, r *http.Request) {
	state, err := p.queries.GetSyncState.Query(r.Context(), catalogquery.GetSyncStateMessage{
		Resource: core.ResourceKind(r.PathValue("kind")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Resource:      state.Resource,
		Cursor:        state.Cursor,
		LastRunAt:     state.LastRunAt,
		LastSuccessAt: state.LastSuccessAt,
		UpdatedAt:     state.UpdatedAt,
	})
}

func (p *Pipeline) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	event, err := p.queries.GetWebhookEvent.Query(r.Context(), catalogquery.GetWebhookEventMessage{
		EventID: r.PathValue("id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{
		ID:          event.ID,
		DeliveryID:  event.DeliveryID,
		Topic:       event.Topic,
		Shop:        event.Shop,
		Status:      event.Status,
		Error:       event.Error,
		TriggeredAt: event.TriggeredAt,
		ProcessedAt: event.ProcessedAt,
		CreatedAt:   event.CreatedAt,
	})
}

func newRunResponse(result syncengine.Result) runResponse {
	out := runResponse{
		Full:          result.Full,
		Pages:         result.Pages,
		CatalogPurged: result.CatalogPurged,
		EventsPurged:  result.EventsPurged,
		StartedAt:     result.StartedAt,
		FinishedAt:    result.FinishedAt,
		Resources:     make([]runResourceResponse, 0, len(result.Resources)),
	}
	for _, resource := range result.Resources {
		item := runResourceResponse{
			Resource:        resource.Resource,
			StartCursor:     resource.StartCursor,
			Cursor:          resource.Cursor,
			Pages:           resource.Pages,
			Products:        resource.Upsert.ProductsUpserted,
			Variants:        resource.Upsert.VariantsUpserted,
			Collections:     resource.Upsert.CollectionsUpserted,
			MappingFailures: resource.MappingFailures,
			Completed:       resource.Completed,
			Truncated:       resource.Truncated,
			Skipped:         resource.Skipped,
			Error:           resource.Error,
		}
		out.Resources = append(out.Resources, item)
	}
	return out
}

type stateResponse struct {
	Resource      core.ResourceKind `json:"resource"`
	Cursor        string            `json:"cursor"`
	LastRunAt     *time.Time        `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time        `json:"last_success_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type eventResponse struct {
	ID          string                  `json:"id"`
	DeliveryID  string                  `json:"delivery_id"`
	Topic       string                  `json:"topic"`
	Shop        string                  `json:"shop"`
	Status      core.WebhookEventStatus `json:"status"`
	Error       string                  `json:"error,omitempty"`
	TriggeredAt *time.Time              `json:"triggered_at,omitempty"`
	ProcessedAt *time.Time              `json:"processed_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, core.HTTPStatus(err), errorResponse{Code: core.TextCode(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
