// Package shopify binds the catalog pipeline to the Shopify Admin API: the
// paginated GraphQL catalog query, webhook header names and throttle handling.
package shopify
