package gojob

import (
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
)

const (
	JobIDProcessWebhook = "catalog.webhook.process"
	JobIDReconcile      = "catalog.sync.reconcile"

	ParamEventID  = "event_id"
	ParamFullSync = "full"
)

// NewWebhookMessage builds the execution message that hands a stored webhook
// event to a worker. The event id doubles as the idempotency key the queue
// uses to drop pending duplicates. Execution dedup stays off: the go-job
// commander tracks keys process-wide and would drop retries.
func NewWebhookMessage(eventID string) (*job.ExecutionMessage, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("gojob: event id is required")
	}
	return &job.ExecutionMessage{
		JobID:          JobIDProcessWebhook,
		ScriptPath:     JobIDProcessWebhook,
		Parameters:     map[string]any{ParamEventID: eventID},
		IdempotencyKey: "webhook:" + eventID,
		DedupPolicy:    job.DedupPolicyIgnore,
	}, nil
}

func NewReconcileMessage(full bool) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDReconcile,
		ScriptPath: JobIDReconcile,
		Parameters: map[string]any{ParamFullSync: full},
	}
}

func EventIDFromMessage(msg *job.ExecutionMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("gojob: execution message is required")
	}
	raw, ok := msg.Parameters[ParamEventID]
	if !ok {
		return "", fmt.Errorf("gojob: message %q has no %s parameter", msg.JobID, ParamEventID)
	}
	eventID := strings.TrimSpace(fmt.Sprint(raw))
	if eventID == "" || eventID == "<nil>" {
		return "", fmt.Errorf("gojob: message %q has an empty %s parameter", msg.JobID, ParamEventID)
	}
	return eventID, nil
}

func FullSyncFromMessage(msg *job.ExecutionMessage) bool {
	if msg == nil {
		return false
	}
	full, _ := msg.Parameters[ParamFullSync].(bool)
	return full
}

func cloneMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := *msg
	out.JobID = strings.TrimSpace(msg.JobID)
	out.ScriptPath = strings.TrimSpace(msg.ScriptPath)
	out.IdempotencyKey = strings.TrimSpace(msg.IdempotencyKey)
	out.Parameters = copyAnyMap(msg.Parameters)
	return &out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
