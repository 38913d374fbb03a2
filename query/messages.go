package query

import (
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
)

const (
	TypeGetSyncState    = "catalog.query.sync_state.get"
	TypeGetWebhookEvent = "catalog.query.webhook_event.get"
)

type GetSyncStateMessage struct {
	Resource core.ResourceKind
}

func (GetSyncStateMessage) Type() string { return TypeGetSyncState }

func (m GetSyncStateMessage) Validate() error {
	if _, err := core.ParseResourceKind(string(m.Resource)); err != nil {
		return queryValidationError("resource", "unknown resource kind "+string(m.Resource))
	}
	return nil
}

type GetWebhookEventMessage struct {
	EventID string
}

func (GetWebhookEventMessage) Type() string { return TypeGetWebhookEvent }

func (m GetWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}
