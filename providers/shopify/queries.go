package shopify

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
)

const (
	productsConnection    = "products"
	collectionsConnection = "collections"
)

const productsQuery = `query CatalogProducts($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        handle
        title
        description
        descriptionHtml
        status
        vendor
        productType
        tags
        featuredImage { url altText }
        options { name values }
        publishedAt
        updatedAt
        variants(first: 100) {
          pageInfo { hasNextPage }
          edges {
            node {
              id
              sku
              title
              price
              compareAtPrice
              inventoryQuantity
              inventoryPolicy
              availableForSale
              selectedOptions { name value }
              updatedAt
            }
          }
        }
        collections(first: 50) {
          pageInfo { hasNextPage }
          edges { node { id } }
        }
      }
    }
  }
}`

const collectionsQuery = `query CatalogCollections($first: Int!, $after: String, $query: String) {
  collections(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        handle
        title
        description
        image { url altText }
        updatedAt
      }
    }
  }
}`

type catalogQuery struct {
	operation  string
	text       string
	connection string
}

func queryFor(resource core.ResourceKind) (catalogQuery, error) {
	switch resource {
	case core.ResourceProducts:
		return catalogQuery{operation: "CatalogProducts", text: productsQuery, connection: productsConnection}, nil
	case core.ResourceCollections:
		return catalogQuery{operation: "CatalogCollections", text: collectionsQuery, connection: collectionsConnection}, nil
	default:
		return catalogQuery{}, fmt.Errorf("providers/shopify: %w: %q", core.ErrInvalidResource, resource)
	}
}

// UpdatedSinceFilter renders the search filter restricting a page to entities
// updated at or after cursor.
func UpdatedSinceFilter(cursor string) string {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return ""
	}
	return fmt.Sprintf("updated_at:>='%s'", cursor)
}
