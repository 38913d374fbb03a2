package sqlstore

import "github.com/goliatone/go-catalog-sync/core"

var (
	_ core.WebhookEventStore = (*WebhookEventStore)(nil)
	_ core.SyncStateStore    = (*SyncStateStore)(nil)
	_ core.CatalogStore      = (*CatalogStore)(nil)
	_ core.Locker            = (*LeaseStore)(nil)
	_ core.StoreProvider     = (*RepositoryFactory)(nil)
)
