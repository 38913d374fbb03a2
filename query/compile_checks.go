package query

import (
	"github.com/goliatone/go-catalog-sync/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetSyncStateMessage, core.SyncState]       = (*GetSyncStateQuery)(nil)
	_ gocmd.Querier[GetWebhookEventMessage, core.WebhookEvent] = (*GetWebhookEventQuery)(nil)
)
