package shopify

import (
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/goliatone/go-catalog-sync/webhooks"
)

const (
	HeaderHMAC        = "X-Shopify-Hmac-Sha256"
	HeaderTopic       = "X-Shopify-Topic"
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderEventID     = "X-Shopify-Event-Id"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
)

const DefaultReplayWindow = 5 * time.Minute

// WebhookHeaders lists the Shopify delivery headers. The webhook id is the
// primary delivery id, the event id its alias.
func WebhookHeaders() webhooks.HeaderSet {
	return webhooks.HeaderSet{
		Signature:   HeaderHMAC,
		Topic:       HeaderTopic,
		Shop:        HeaderShopDomain,
		DeliveryID:  []string{HeaderWebhookID, HeaderEventID},
		TriggeredAt: HeaderTriggeredAt,
	}
}

type WebhookConfig struct {
	Secret       string
	ReplayWindow time.Duration
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{
		Secret:       strings.TrimSpace(secret),
		ReplayWindow: 0,
	}
}

// NewWebhookReceiver builds a receiver bound to the Shopify header names.
func NewWebhookReceiver(
	cfg WebhookConfig,
	events core.WebhookEventStore,
	scheduler core.TaskScheduler,
	opts ...webhooks.ReceiverOption,
) (*webhooks.Receiver, error) {
	options := make([]webhooks.ReceiverOption, 0, len(opts)+1)
	if cfg.ReplayWindow > 0 {
		options = append(options, webhooks.WithReplayWindow(cfg.ReplayWindow))
	}
	options = append(options, opts...)
	return webhooks.NewReceiver(strings.TrimSpace(cfg.Secret), WebhookHeaders(), events, scheduler, options...)
}
