package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrEventNotFound     = errors.New("core: webhook event not found")
	ErrSyncStateNotFound = errors.New("core: sync state not found")
	ErrLeaseHeld         = errors.New("core: lease already held")
	ErrInvalidResource   = errors.New("core: invalid resource kind")
	// ErrRunDeadline marks upstream waits that cannot finish before the
	// reconciliation run deadline.
	ErrRunDeadline = errors.New("core: run deadline reached")
)

type ResourceKind string

const (
	ResourceProducts    ResourceKind = "products"
	ResourceCollections ResourceKind = "collections"
)

// ResourceKinds lists every kind in reconciliation order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{ResourceProducts, ResourceCollections}
}

func ParseResourceKind(value string) (ResourceKind, error) {
	switch ResourceKind(strings.TrimSpace(strings.ToLower(value))) {
	case ResourceProducts:
		return ResourceProducts, nil
	case ResourceCollections:
		return ResourceCollections, nil
	default:
		return "", ErrInvalidResource
	}
}

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
	ProductStatusDraft    ProductStatus = "draft"
)

type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductSnapshot is the canonical view of an external product at the time it
// was last observed. UpdatedAt is the source timestamp and decides ordering.
type ProductSnapshot struct {
	ExternalID      string
	Handle          string
	Title           string
	Description     string
	DescriptionHTML string
	Status          ProductStatus
	Vendor          string
	ProductType     string
	Tags            []string
	FeaturedImage   *Image
	Options         []ProductOption
	MinPrice        string
	MaxPrice        string
	Currency        string
	PublishedAt     string
	UpdatedAt       string
	Variants        []VariantSnapshot
	CollectionIDs   []string

	// VariantsPartial and CollectionsPartial mark lists cut at the first
	// page of a nested connection. Replace writes skip their deletes.
	VariantsPartial    bool
	CollectionsPartial bool
}

type VariantSnapshot struct {
	ExternalID      string
	ProductID       string
	SKU             string
	Title           string
	Available       bool
	SelectedOptions []SelectedOption
	Price           string
	CompareAtPrice  string
	Currency        string
	InventoryPolicy string
	UpdatedAt       string
}

type CollectionSnapshot struct {
	ExternalID  string
	Handle      string
	Title       string
	Description string
	Image       *Image
	UpdatedAt   string
}

type SyncState struct {
	Resource      ResourceKind
	Cursor        string
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SaveSyncStateInput struct {
	Resource      ResourceKind
	Cursor        string
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	Metadata      map[string]any
}

type WebhookEventStatus string

const (
	WebhookEventQueued    WebhookEventStatus = "queued"
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventFailed    WebhookEventStatus = "failed"
	WebhookEventDuplicate WebhookEventStatus = "duplicate"
)

type WebhookEvent struct {
	ID          string
	DeliveryID  string
	Topic       string
	Shop        string
	TriggeredAt *time.Time
	Payload     []byte
	ContentHash string
	Status      WebhookEventStatus
	ProcessedAt *time.Time
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EnqueueWebhookInput struct {
	DeliveryID  string
	Topic       string
	Shop        string
	TriggeredAt *time.Time
	Payload     []byte
	ContentHash string
}

type EnqueueResult struct {
	Created bool
	EventID string
	Status  WebhookEventStatus
}

const (
	UpsertSourceWebhook   = "webhook"
	UpsertSourceReconcile = "reconcile"
)

type UpsertCatalogInput struct {
	Source              string
	ReplaceAssociations bool
	ReplaceVariants     bool
	Products            []ProductSnapshot
	Collections         []CollectionSnapshot
}

type UpsertCatalogResult struct {
	ProductsUpserted    int
	CollectionsUpserted int
	VariantsUpserted    int
	ProductsSkipped     int
	CollectionsSkipped  int
}

func (r UpsertCatalogResult) Add(other UpsertCatalogResult) UpsertCatalogResult {
	return UpsertCatalogResult{
		ProductsUpserted:    r.ProductsUpserted + other.ProductsUpserted,
		CollectionsUpserted: r.CollectionsUpserted + other.CollectionsUpserted,
		VariantsUpserted:    r.VariantsUpserted + other.VariantsUpserted,
		ProductsSkipped:     r.ProductsSkipped + other.ProductsSkipped,
		CollectionsSkipped:  r.CollectionsSkipped + other.CollectionsSkipped,
	}
}

// CatalogPageRequest asks the external catalog for one page of a resource.
// UpdatedSince, when set, restricts the page to entities updated at or after it.
type CatalogPageRequest struct {
	Resource     ResourceKind
	First        int
	After        string
	UpdatedSince string
}

// CatalogPage carries raw vendor nodes; callers map them with the payload mapper.
type CatalogPage struct {
	Nodes       []json.RawMessage
	HasNextPage bool
	EndCursor   string
}
