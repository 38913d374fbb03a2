package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// CatalogStore persists product, variant and collection snapshots. Every
// write compares source timestamps: an incoming snapshot strictly older than
// the stored one is skipped, and a soft-deleted row is revived only by a
// snapshot newer than its deletion.
type CatalogStore struct {
	db             *bun.DB
	productRepo    repository.Repository[*productRecord]
	collectionRepo repository.Repository[*collectionRecord]
	now            func() time.Time
}

// CatalogProduct is a stored product together with its soft-delete marker.
type CatalogProduct struct {
	core.ProductSnapshot
	DeletedAt *time.Time
}

// CatalogCollection is a stored collection together with its soft-delete marker.
type CatalogCollection struct {
	core.CollectionSnapshot
	DeletedAt *time.Time
}

func NewCatalogStore(db *bun.DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	productRepo := repository.NewRepository[*productRecord](db, productHandlers())
	if validator, ok := productRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid product repository wiring: %w", err)
		}
	}
	collectionRepo := repository.NewRepository[*collectionRecord](db, collectionHandlers())
	if validator, ok := collectionRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid collection repository wiring: %w", err)
		}
	}
	return &CatalogStore{
		db:             db,
		productRepo:    productRepo,
		collectionRepo: collectionRepo,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *CatalogStore) UpsertCatalogSnapshot(
	ctx context.Context,
	in core.UpsertCatalogInput,
) (core.UpsertCatalogResult, error) {
	if s == nil || s.db == nil {
		return core.UpsertCatalogResult{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	products := make([]core.ProductSnapshot, 0, len(in.Products))
	for _, product := range in.Products {
		normalized, err := normalizeProductSnapshot(product)
		if err != nil {
			return core.UpsertCatalogResult{}, err
		}
		products = append(products, normalized)
	}
	collections := make([]core.CollectionSnapshot, 0, len(in.Collections))
	for _, collection := range in.Collections {
		normalized, err := normalizeCollectionSnapshot(collection)
		if err != nil {
			return core.UpsertCatalogResult{}, err
		}
		collections = append(collections, normalized)
	}
	now := s.now()

	var result core.UpsertCatalogResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result = core.UpsertCatalogResult{}
		for _, collection := range collections {
			applied, err := upsertCollectionTx(ctx, tx, collection, now)
			if err != nil {
				return err
			}
			if applied {
				result.CollectionsUpserted++
			} else {
				result.CollectionsSkipped++
			}
		}
		for _, product := range products {
			applied, err := upsertProductTx(ctx, tx, product, now)
			if err != nil {
				return err
			}
			if !applied {
				result.ProductsSkipped++
				continue
			}
			result.ProductsUpserted++

			variants, err := writeVariantsTx(ctx, tx, product, in.ReplaceVariants && !product.VariantsPartial, now)
			if err != nil {
				return err
			}
			result.VariantsUpserted += variants

			if err := writeAssociationsTx(ctx, tx, product, in.ReplaceAssociations && !product.CollectionsPartial, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.UpsertCatalogResult{}, err
	}
	return result, nil
}

func (s *CatalogStore) DeleteProductByExternalID(ctx context.Context, externalID string, deletedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: catalog store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.ValidationError("product external id is required", nil)
	}
	deletedAt = s.deletionTime(deletedAt)
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tombstone := &productRecord{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			Status:     string(core.ProductStatusDraft),
			Tags:       []string{},
			Options:    []core.ProductOption{},
			DeletedAt:  &deletedAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted, err := insertIfAbsent(ctx, tx.NewInsert().Model(tombstone), "external_id")
		if err != nil || inserted {
			return err
		}
		record, err := lockProductTx(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if !shouldApplyDeletion(record.SourceUpdatedAt, record.DeletedAt, deletedAt) {
			return nil
		}
		_, err = tx.NewUpdate().
			Model((*productRecord)(nil)).
			Set("deleted_at = ?", deletedAt).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Where("source_updated_at <= ?", core.FormatTimestamp(deletedAt)).
			Exec(ctx)
		return err
	})
}

func (s *CatalogStore) DeleteCollectionByExternalID(ctx context.Context, externalID string, deletedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: catalog store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.ValidationError("collection external id is required", nil)
	}
	deletedAt = s.deletionTime(deletedAt)
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tombstone := &collectionRecord{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			DeletedAt:  &deletedAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted, err := insertIfAbsent(ctx, tx.NewInsert().Model(tombstone), "external_id")
		if err != nil || inserted {
			return err
		}
		record, err := lockCollectionTx(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if !shouldApplyDeletion(record.SourceUpdatedAt, record.DeletedAt, deletedAt) {
			return nil
		}
		_, err = tx.NewUpdate().
			Model((*collectionRecord)(nil)).
			Set("deleted_at = ?", deletedAt).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Where("source_updated_at <= ?", core.FormatTimestamp(deletedAt)).
			Exec(ctx)
		return err
	})
}

// PurgeDeletedOlderThan hard-deletes products and collections soft-deleted
// before the cutoff, along with their variants and memberships.
func (s *CatalogStore) PurgeDeletedOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	if age <= 0 {
		return 0, fmt.Errorf("sqlstore: purge age must be positive")
	}
	cutoff := s.now().Add(-age)

	purged := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var productIDs []string
		if err := tx.NewSelect().
			Model((*productRecord)(nil)).
			Column("external_id").
			Where("deleted_at IS NOT NULL").
			Where("deleted_at < ?", cutoff).
			Scan(ctx, &productIDs); err != nil {
			return err
		}
		var collectionIDs []string
		if err := tx.NewSelect().
			Model((*collectionRecord)(nil)).
			Column("external_id").
			Where("deleted_at IS NOT NULL").
			Where("deleted_at < ?", cutoff).
			Scan(ctx, &collectionIDs); err != nil {
			return err
		}

		if len(productIDs) > 0 {
			if _, err := tx.NewDelete().
				Model((*variantRecord)(nil)).
				Where("product_external_id IN (?)", bun.In(productIDs)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*productCollectionRecord)(nil)).
				Where("product_external_id IN (?)", bun.In(productIDs)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*productRecord)(nil)).
				Where("external_id IN (?)", bun.In(productIDs)).
				Exec(ctx); err != nil {
				return err
			}
		}
		if len(collectionIDs) > 0 {
			if _, err := tx.NewDelete().
				Model((*productCollectionRecord)(nil)).
				Where("collection_external_id IN (?)", bun.In(collectionIDs)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*collectionRecord)(nil)).
				Where("external_id IN (?)", bun.In(collectionIDs)).
				Exec(ctx); err != nil {
				return err
			}
		}
		purged = len(productIDs) + len(collectionIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// GetProduct loads a stored product with its variants and collection ids.
func (s *CatalogStore) GetProduct(ctx context.Context, externalID string) (CatalogProduct, error) {
	if s == nil || s.db == nil || s.productRepo == nil {
		return CatalogProduct{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	records, _, err := s.productRepo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return CatalogProduct{}, err
	}
	if len(records) == 0 {
		return CatalogProduct{}, core.NotFoundError(nil, "product not found", map[string]any{"external_id": externalID})
	}
	record := records[0]
	out := CatalogProduct{
		ProductSnapshot: record.toDomain(),
		DeletedAt:       cloneTimePointer(record.DeletedAt),
	}

	var variants []variantRecord
	if err := s.db.NewSelect().
		Model(&variants).
		Where("?TableAlias.product_external_id = ?", externalID).
		OrderExpr("?TableAlias.external_id ASC").
		Scan(ctx); err != nil {
		return CatalogProduct{}, err
	}
	for i := range variants {
		out.Variants = append(out.Variants, variants[i].toDomain())
	}

	var memberships []productCollectionRecord
	if err := s.db.NewSelect().
		Model(&memberships).
		Where("?TableAlias.product_external_id = ?", externalID).
		OrderExpr("?TableAlias.position ASC").
		Scan(ctx); err != nil {
		return CatalogProduct{}, err
	}
	for _, membership := range memberships {
		out.CollectionIDs = append(out.CollectionIDs, membership.CollectionExternalID)
	}
	return out, nil
}

func (s *CatalogStore) GetCollection(ctx context.Context, externalID string) (CatalogCollection, error) {
	if s == nil || s.collectionRepo == nil {
		return CatalogCollection{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	records, _, err := s.collectionRepo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return CatalogCollection{}, err
	}
	if len(records) == 0 {
		return CatalogCollection{}, core.NotFoundError(nil, "collection not found", map[string]any{"external_id": externalID})
	}
	return CatalogCollection{
		CollectionSnapshot: records[0].toDomain(),
		DeletedAt:          cloneTimePointer(records[0].DeletedAt),
	}, nil
}

func (s *CatalogStore) deletionTime(deletedAt time.Time) time.Time {
	if deletedAt.IsZero() {
		return s.now()
	}
	return deletedAt.UTC()
}

// upsertProductTx inserts the product or, when a row already exists, locks
// it and applies the freshness rule. The update repeats the timestamp
// predicate so a writer that raced past the check cannot regress the row.
func upsertProductTx(ctx context.Context, tx bun.Tx, snapshot core.ProductSnapshot, now time.Time) (bool, error) {
	record := &productRecord{ID: uuid.NewString(), CreatedAt: now}
	record.apply(snapshot, now)
	inserted, err := insertIfAbsent(ctx, tx.NewInsert().Model(record), "external_id")
	if err != nil || inserted {
		return inserted, err
	}

	stored, err := lockProductTx(ctx, tx, snapshot.ExternalID)
	if err != nil {
		return false, err
	}
	if !isFresh(stored.SourceUpdatedAt, stored.DeletedAt, snapshot.UpdatedAt) {
		return false, nil
	}
	record.ID = stored.ID
	record.CreatedAt = stored.CreatedAt
	res, err := tx.NewUpdate().
		Model(record).
		ExcludeColumn("id", "created_at").
		Where("id = ?", stored.ID).
		Where("source_updated_at <= ?", snapshot.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func upsertCollectionTx(ctx context.Context, tx bun.Tx, snapshot core.CollectionSnapshot, now time.Time) (bool, error) {
	record := &collectionRecord{ID: uuid.NewString(), CreatedAt: now}
	record.apply(snapshot, now)
	inserted, err := insertIfAbsent(ctx, tx.NewInsert().Model(record), "external_id")
	if err != nil || inserted {
		return inserted, err
	}

	stored, err := lockCollectionTx(ctx, tx, snapshot.ExternalID)
	if err != nil {
		return false, err
	}
	if !isFresh(stored.SourceUpdatedAt, stored.DeletedAt, snapshot.UpdatedAt) {
		return false, nil
	}
	record.ID = stored.ID
	record.CreatedAt = stored.CreatedAt
	res, err := tx.NewUpdate().
		Model(record).
		ExcludeColumn("id", "created_at").
		Where("id = ?", stored.ID).
		Where("source_updated_at <= ?", snapshot.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

// writeVariantsTx upserts every variant of product in one statement per
// variant. The owning product row is already locked by upsertProductTx.
func writeVariantsTx(
	ctx context.Context,
	tx bun.Tx,
	product core.ProductSnapshot,
	replace bool,
	now time.Time,
) (int, error) {
	keep := make([]string, 0, len(product.Variants))
	written := 0
	for _, variant := range product.Variants {
		externalID := strings.TrimSpace(variant.ExternalID)
		if externalID == "" {
			continue
		}
		variant.ExternalID = externalID
		keep = append(keep, externalID)

		if _, err := tx.NewInsert().
			Model(newVariantRecord(product.ExternalID, variant, now)).
			On("CONFLICT (external_id) DO UPDATE").
			Set("product_external_id = EXCLUDED.product_external_id").
			Set("sku = EXCLUDED.sku").
			Set("title = EXCLUDED.title").
			Set("available = EXCLUDED.available").
			Set("selected_options = EXCLUDED.selected_options").
			Set("price = EXCLUDED.price").
			Set("compare_at_price = EXCLUDED.compare_at_price").
			Set("currency = EXCLUDED.currency").
			Set("inventory_policy = EXCLUDED.inventory_policy").
			Set("source_updated_at = EXCLUDED.source_updated_at").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return written, err
		}
		written++
	}

	if !replace {
		return written, nil
	}
	query := tx.NewDelete().
		Model((*variantRecord)(nil)).
		Where("product_external_id = ?", product.ExternalID)
	if len(keep) > 0 {
		query = query.Where("external_id NOT IN (?)", bun.In(keep))
	}
	if _, err := query.Exec(ctx); err != nil {
		return written, err
	}
	return written, nil
}

func writeAssociationsTx(
	ctx context.Context,
	tx bun.Tx,
	product core.ProductSnapshot,
	replace bool,
	now time.Time,
) error {
	if replace {
		if _, err := tx.NewDelete().
			Model((*productCollectionRecord)(nil)).
			Where("product_external_id = ?", product.ExternalID).
			Exec(ctx); err != nil {
			return err
		}
	}

	rows := make([]productCollectionRecord, 0, len(product.CollectionIDs))
	seen := make(map[string]struct{}, len(product.CollectionIDs))
	for _, collectionID := range product.CollectionIDs {
		collectionID = strings.TrimSpace(collectionID)
		if collectionID == "" {
			continue
		}
		if _, ok := seen[collectionID]; ok {
			continue
		}
		seen[collectionID] = struct{}{}
		rows = append(rows, productCollectionRecord{
			ProductExternalID:    product.ExternalID,
			CollectionExternalID: collectionID,
			Position:             len(rows),
			CreatedAt:            now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (product_external_id, collection_external_id) DO NOTHING").
		Exec(ctx)
	return err
}

// insertIfAbsent runs insert with ON CONFLICT (<key>) DO NOTHING. A
// concurrent insert of the same key resolves to false instead of aborting
// the transaction on a unique violation.
func insertIfAbsent(ctx context.Context, insert *bun.InsertQuery, key string) (bool, error) {
	res, err := insert.On("CONFLICT (?) DO NOTHING", bun.Ident(key)).Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func lockProductTx(ctx context.Context, tx bun.Tx, externalID string) (*productRecord, error) {
	record := &productRecord{}
	query := tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1)
	if err := forUpdate(tx, query).Scan(ctx); err != nil {
		return nil, lockError("product", externalID, err)
	}
	return record, nil
}

func lockCollectionTx(ctx context.Context, tx bun.Tx, externalID string) (*collectionRecord, error) {
	record := &collectionRecord{}
	query := tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1)
	if err := forUpdate(tx, query).Scan(ctx); err != nil {
		return nil, lockError("collection", externalID, err)
	}
	return record, nil
}

// forUpdate row-locks the selected row on postgres. SQLite has no row locks
// and serializes writers on the database lock instead.
func forUpdate(db bun.IDB, query *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return query.For("UPDATE")
	}
	return query
}

func lockError(entity string, externalID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlstore: %s %s vanished after insert conflict: %w", entity, externalID, err)
	}
	return err
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// isFresh reports whether an incoming snapshot may overwrite the stored row.
// Equal timestamps are applied so replays stay idempotent.
func isFresh(storedUpdatedAt string, deletedAt *time.Time, incomingUpdatedAt string) bool {
	if storedUpdatedAt != "" && incomingUpdatedAt < storedUpdatedAt {
		return false
	}
	if deletedAt != nil && incomingUpdatedAt <= core.FormatTimestamp(*deletedAt) {
		return false
	}
	return true
}

// shouldApplyDeletion keeps the latest deletion and ignores deletions older
// than the stored source timestamp.
func shouldApplyDeletion(storedUpdatedAt string, current *time.Time, deletedAt time.Time) bool {
	stamp := core.FormatTimestamp(deletedAt)
	if storedUpdatedAt != "" && stamp < storedUpdatedAt {
		return false
	}
	if current != nil && !deletedAt.After(*current) {
		return false
	}
	return true
}

func normalizeProductSnapshot(snapshot core.ProductSnapshot) (core.ProductSnapshot, error) {
	snapshot.ExternalID = strings.TrimSpace(snapshot.ExternalID)
	if snapshot.ExternalID == "" {
		return core.ProductSnapshot{}, core.ValidationError("product external id is required", nil)
	}
	updatedAt, err := core.NormalizeTimestamp(snapshot.UpdatedAt)
	if err != nil || updatedAt == "" {
		return core.ProductSnapshot{}, core.ValidationError("product updated_at must be an ISO-8601 timestamp", map[string]any{
			"external_id": snapshot.ExternalID,
			"updated_at":  snapshot.UpdatedAt,
		})
	}
	snapshot.UpdatedAt = updatedAt
	if snapshot.Status == "" {
		snapshot.Status = core.ProductStatusDraft
	}
	return snapshot, nil
}

func normalizeCollectionSnapshot(snapshot core.CollectionSnapshot) (core.CollectionSnapshot, error) {
	snapshot.ExternalID = strings.TrimSpace(snapshot.ExternalID)
	if snapshot.ExternalID == "" {
		return core.CollectionSnapshot{}, core.ValidationError("collection external id is required", nil)
	}
	updatedAt, err := core.NormalizeTimestamp(snapshot.UpdatedAt)
	if err != nil || updatedAt == "" {
		return core.CollectionSnapshot{}, core.ValidationError("collection updated_at must be an ISO-8601 timestamp", map[string]any{
			"external_id": snapshot.ExternalID,
			"updated_at":  snapshot.UpdatedAt,
		})
	}
	snapshot.UpdatedAt = updatedAt
	return snapshot, nil
}
