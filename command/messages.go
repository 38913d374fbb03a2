package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
)

const (
	TypeRunReconciliation    = "catalog.command.reconcile.run"
	TypeProcessWebhookEvent  = "catalog.command.webhook_event.process"
	TypeRecoverWebhookEvents = "catalog.command.webhook_event.recover"
	TypePurge                = "catalog.command.purge"
)

type RunReconciliationMessage struct {
	Full      bool
	Resources []core.ResourceKind
}

func (RunReconciliationMessage) Type() string { return TypeRunReconciliation }

func (m RunReconciliationMessage) Validate() error {
	for _, resource := range m.Resources {
		if _, err := core.ParseResourceKind(string(resource)); err != nil {
			return commandValidationError("resources", "unknown resource kind "+string(resource))
		}
	}
	return nil
}

type ProcessWebhookEventMessage struct {
	EventID string
}

func (ProcessWebhookEventMessage) Type() string { return TypeProcessWebhookEvent }

func (m ProcessWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	return nil
}

type RecoverWebhookEventsMessage struct{}

func (RecoverWebhookEventsMessage) Type() string { return TypeRecoverWebhookEvents }

// PurgeMessage removes soft-deleted catalog rows and processed webhook events
// older than the given ages. A zero age skips that purge.
type PurgeMessage struct {
	DeletedOlderThan   time.Duration
	ProcessedOlderThan time.Duration
}

func (PurgeMessage) Type() string { return TypePurge }

func (m PurgeMessage) Validate() error {
	if m.DeletedOlderThan < 0 {
		return commandValidationError("deleted_older_than", "must not be negative")
	}
	if m.ProcessedOlderThan < 0 {
		return commandValidationError("processed_older_than", "must not be negative")
	}
	if m.DeletedOlderThan == 0 && m.ProcessedOlderThan == 0 {
		return commandValidationError("deleted_older_than", "at least one purge age is required")
	}
	return nil
}
