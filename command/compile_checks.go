package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RunReconciliationMessage]    = (*RunReconciliationCommand)(nil)
	_ gocmd.Commander[ProcessWebhookEventMessage]  = (*ProcessWebhookEventCommand)(nil)
	_ gocmd.Commander[RecoverWebhookEventsMessage] = (*RecoverWebhookEventsCommand)(nil)
	_ gocmd.Commander[PurgeMessage]                = (*PurgeCommand)(nil)
)
