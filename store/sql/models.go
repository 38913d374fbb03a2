package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:catalog_webhook_events,alias:cwe"`

	ID          string     `bun:"id,pk"`
	DeliveryID  string     `bun:"delivery_id,notnull"`
	Topic       string     `bun:"topic,notnull"`
	Shop        string     `bun:"shop,notnull"`
	TriggeredAt *time.Time `bun:"triggered_at,nullzero"`
	Payload     []byte     `bun:"payload,notnull"`
	ContentHash string     `bun:"content_hash,notnull"`
	Status      string     `bun:"status,notnull"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero"`
	Error       string     `bun:"error"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncStateRecord struct {
	bun.BaseModel `bun:"table:catalog_sync_state,alias:css"`

	ID            string         `bun:"id,pk"`
	Resource      string         `bun:"resource,notnull"`
	Cursor        string         `bun:"cursor,notnull"`
	LastRunAt     *time.Time     `bun:"last_run_at,nullzero"`
	LastSuccessAt *time.Time     `bun:"last_success_at,nullzero"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:catalog_products,alias:cp"`

	ID              string               `bun:"id,pk"`
	ExternalID      string               `bun:"external_id,notnull"`
	Handle          string               `bun:"handle,notnull"`
	Title           string               `bun:"title,notnull"`
	Description     string               `bun:"description,notnull"`
	DescriptionHTML string               `bun:"description_html,notnull"`
	Status          string               `bun:"status,notnull"`
	Vendor          string               `bun:"vendor,notnull"`
	ProductType     string               `bun:"product_type,notnull"`
	Tags            []string             `bun:"tags,type:jsonb,notnull"`
	FeaturedImage   *core.Image          `bun:"featured_image,type:jsonb"`
	Options         []core.ProductOption `bun:"options,type:jsonb,notnull"`
	MinPrice        string               `bun:"min_price,notnull"`
	MaxPrice        string               `bun:"max_price,notnull"`
	Currency        string               `bun:"currency,notnull"`
	PublishedAt     string               `bun:"published_at,notnull"`
	SourceUpdatedAt string               `bun:"source_updated_at,notnull"`
	DeletedAt       *time.Time           `bun:"deleted_at,nullzero"`
	CreatedAt       time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type variantRecord struct {
	bun.BaseModel `bun:"table:catalog_variants,alias:cv"`

	ID                string                `bun:"id,pk"`
	ExternalID        string                `bun:"external_id,notnull"`
	ProductExternalID string                `bun:"product_external_id,notnull"`
	SKU               string                `bun:"sku,notnull"`
	Title             string                `bun:"title,notnull"`
	Available         bool                  `bun:"available,notnull"`
	SelectedOptions   []core.SelectedOption `bun:"selected_options,type:jsonb,notnull"`
	Price             string                `bun:"price,notnull"`
	CompareAtPrice    string                `bun:"compare_at_price,notnull"`
	Currency          string                `bun:"currency,notnull"`
	InventoryPolicy   string                `bun:"inventory_policy,notnull"`
	SourceUpdatedAt   string                `bun:"source_updated_at,notnull"`
	CreatedAt         time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time             `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type collectionRecord struct {
	bun.BaseModel `bun:"table:catalog_collections,alias:cc"`

	ID              string      `bun:"id,pk"`
	ExternalID      string      `bun:"external_id,notnull"`
	Handle          string      `bun:"handle,notnull"`
	Title           string      `bun:"title,notnull"`
	Description     string      `bun:"description,notnull"`
	Image           *core.Image `bun:"image,type:jsonb"`
	SourceUpdatedAt string      `bun:"source_updated_at,notnull"`
	DeletedAt       *time.Time  `bun:"deleted_at,nullzero"`
	CreatedAt       time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productCollectionRecord struct {
	bun.BaseModel `bun:"table:catalog_product_collections,alias:cpc"`

	ProductExternalID    string    `bun:"product_external_id,pk"`
	CollectionExternalID string    `bun:"collection_external_id,pk"`
	Position             int       `bun:"position,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type leaseRecord struct {
	bun.BaseModel `bun:"table:catalog_sync_leases,alias:csl"`

	Key       string    `bun:"lease_key,pk"`
	Owner     string    `bun:"owner,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newWebhookEventRecord(in core.EnqueueWebhookInput, now time.Time) *webhookEventRecord {
	return &webhookEventRecord{
		ID:          uuid.NewString(),
		DeliveryID:  in.DeliveryID,
		Topic:       in.Topic,
		Shop:        in.Shop,
		TriggeredAt: cloneTimePointer(in.TriggeredAt),
		Payload:     append([]byte(nil), in.Payload...),
		ContentHash: in.ContentHash,
		Status:      string(core.WebhookEventQueued),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:          r.ID,
		DeliveryID:  r.DeliveryID,
		Topic:       r.Topic,
		Shop:        r.Shop,
		TriggeredAt: cloneTimePointer(r.TriggeredAt),
		Payload:     append([]byte(nil), r.Payload...),
		ContentHash: r.ContentHash,
		Status:      core.WebhookEventStatus(r.Status),
		ProcessedAt: cloneTimePointer(r.ProcessedAt),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r *syncStateRecord) toDomain() core.SyncState {
	if r == nil {
		return core.SyncState{}
	}
	return core.SyncState{
		Resource:      core.ResourceKind(r.Resource),
		Cursor:        r.Cursor,
		LastRunAt:     cloneTimePointer(r.LastRunAt),
		LastSuccessAt: cloneTimePointer(r.LastSuccessAt),
		Metadata:      copyAnyMap(r.Metadata),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (r *productRecord) apply(snapshot core.ProductSnapshot, now time.Time) {
	r.ExternalID = snapshot.ExternalID
	r.Handle = snapshot.Handle
	r.Title = snapshot.Title
	r.Description = snapshot.Description
	r.DescriptionHTML = snapshot.DescriptionHTML
	r.Status = string(snapshot.Status)
	r.Vendor = snapshot.Vendor
	r.ProductType = snapshot.ProductType
	r.Tags = append([]string{}, snapshot.Tags...)
	r.FeaturedImage = cloneImage(snapshot.FeaturedImage)
	r.Options = append([]core.ProductOption{}, snapshot.Options...)
	r.MinPrice = snapshot.MinPrice
	r.MaxPrice = snapshot.MaxPrice
	r.Currency = snapshot.Currency
	r.PublishedAt = snapshot.PublishedAt
	r.SourceUpdatedAt = snapshot.UpdatedAt
	r.DeletedAt = nil
	r.UpdatedAt = now
}

func (r *productRecord) toDomain() core.ProductSnapshot {
	if r == nil {
		return core.ProductSnapshot{}
	}
	return core.ProductSnapshot{
		ExternalID:      r.ExternalID,
		Handle:          r.Handle,
		Title:           r.Title,
		Description:     r.Description,
		DescriptionHTML: r.DescriptionHTML,
		Status:          core.ProductStatus(r.Status),
		Vendor:          r.Vendor,
		ProductType:     r.ProductType,
		Tags:            append([]string(nil), r.Tags...),
		FeaturedImage:   cloneImage(r.FeaturedImage),
		Options:         append([]core.ProductOption(nil), r.Options...),
		MinPrice:        r.MinPrice,
		MaxPrice:        r.MaxPrice,
		Currency:        r.Currency,
		PublishedAt:     r.PublishedAt,
		UpdatedAt:       r.SourceUpdatedAt,
	}
}

func newVariantRecord(productID string, snapshot core.VariantSnapshot, now time.Time) *variantRecord {
	record := &variantRecord{ID: uuid.NewString(), CreatedAt: now}
	record.apply(productID, snapshot, now)
	return record
}

func (r *variantRecord) apply(productID string, snapshot core.VariantSnapshot, now time.Time) {
	r.ExternalID = snapshot.ExternalID
	r.ProductExternalID = productID
	r.SKU = snapshot.SKU
	r.Title = snapshot.Title
	r.Available = snapshot.Available
	r.SelectedOptions = append([]core.SelectedOption{}, snapshot.SelectedOptions...)
	r.Price = snapshot.Price
	r.CompareAtPrice = snapshot.CompareAtPrice
	r.Currency = snapshot.Currency
	r.InventoryPolicy = snapshot.InventoryPolicy
	r.SourceUpdatedAt = snapshot.UpdatedAt
	r.UpdatedAt = now
}

func (r *variantRecord) toDomain() core.VariantSnapshot {
	if r == nil {
		return core.VariantSnapshot{}
	}
	return core.VariantSnapshot{
		ExternalID:      r.ExternalID,
		ProductID:       r.ProductExternalID,
		SKU:             r.SKU,
		Title:           r.Title,
		Available:       r.Available,
		SelectedOptions: append([]core.SelectedOption(nil), r.SelectedOptions...),
		Price:           r.Price,
		CompareAtPrice:  r.CompareAtPrice,
		Currency:        r.Currency,
		InventoryPolicy: r.InventoryPolicy,
		UpdatedAt:       r.SourceUpdatedAt,
	}
}

func (r *collectionRecord) apply(snapshot core.CollectionSnapshot, now time.Time) {
	r.ExternalID = snapshot.ExternalID
	r.Handle = snapshot.Handle
	r.Title = snapshot.Title
	r.Description = snapshot.Description
	r.Image = cloneImage(snapshot.Image)
	r.SourceUpdatedAt = snapshot.UpdatedAt
	r.DeletedAt = nil
	r.UpdatedAt = now
}

func (r *collectionRecord) toDomain() core.CollectionSnapshot {
	if r == nil {
		return core.CollectionSnapshot{}
	}
	return core.CollectionSnapshot{
		ExternalID:  r.ExternalID,
		Handle:      r.Handle,
		Title:       r.Title,
		Description: r.Description,
		Image:       cloneImage(r.Image),
		UpdatedAt:   r.SourceUpdatedAt,
	}
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

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneImage(input *core.Image) *core.Image {
	if input == nil || strings.TrimSpace(input.URL) == "" {
		return nil
	}
	value := *input
	return &value
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
