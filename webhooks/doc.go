// Package webhooks receives catalog change notifications and turns stored
// deliveries into catalog mutations.
//
// A delivery moves through a one-way lifecycle: queued -> processed|failed.
// The receiver verifies and stores it, then hands the event id to a task
// scheduler. The processor is idempotent, so a redelivered task for an
// already-settled event is a no-op.
package webhooks
