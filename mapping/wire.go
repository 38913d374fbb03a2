package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tags decodes either a JSON list or a comma separated string into a trimmed,
// ordered list without blanks.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	var raw []string
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("mapping: tags list: %w", err)
		}
	case '"':
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		raw = strings.Split(joined, ",")
	default:
		return fmt.Errorf("mapping: tags must be a list or string")
	}
	*t = normalizeTags(raw)
	return nil
}

func normalizeTags(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Money decodes a decimal string, a bare number, or a MoneyV2 object.
type Money struct {
	Amount       string
	CurrencyCode string
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	switch data[0] {
	case '{':
		var object struct {
			Amount       json.Number `json:"amount"`
			CurrencyCode string      `json:"currencyCode"`
		}
		if err := json.Unmarshal(data, &object); err != nil {
			return fmt.Errorf("mapping: money object: %w", err)
		}
		*m = Money{
			Amount:       strings.TrimSpace(object.Amount.String()),
			CurrencyCode: strings.ToUpper(strings.TrimSpace(object.CurrencyCode)),
		}
	case '"':
		var amount string
		if err := json.Unmarshal(data, &amount); err != nil {
			return err
		}
		*m = Money{Amount: strings.TrimSpace(amount)}
	default:
		var number json.Number
		if err := json.Unmarshal(data, &number); err != nil {
			return fmt.Errorf("mapping: money must be a string, number or object: %w", err)
		}
		*m = Money{Amount: number.String()}
	}
	return nil
}

// Connection decodes a GraphQL connection exposed either as edges or nodes.
// HasNextPage reports that Items is only the first page of the connection.
type Connection[T any] struct {
	Items       []T
	HasNextPage bool
}

func (c *Connection[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	c.HasNextPage = false
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		c.Items = nil
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, &c.Items)
	}
	var wire struct {
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
		Edges []struct {
			Node T `json:"node"`
		} `json:"edges"`
		Nodes []T `json:"nodes"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items := append([]T(nil), wire.Nodes...)
	for _, edge := range wire.Edges {
		items = append(items, edge.Node)
	}
	c.Items = items
	c.HasNextPage = wire.PageInfo.HasNextPage
	return nil
}

type graphImage struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type graphOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type graphSelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphVariant struct {
	ID                FlexibleID            `json:"id"`
	SKU               string                `json:"sku"`
	Title             string                `json:"title"`
	Price             Money                 `json:"price"`
	CompareAtPrice    Money                 `json:"compareAtPrice"`
	InventoryQuantity *int                  `json:"inventoryQuantity"`
	InventoryPolicy   string                `json:"inventoryPolicy"`
	AvailableForSale  *bool                 `json:"availableForSale"`
	SelectedOptions   []graphSelectedOption `json:"selectedOptions"`
	UpdatedAt         string                `json:"updatedAt"`
}

type graphCollectionRef struct {
	ID FlexibleID `json:"id"`
}

type graphProduct struct {
	ID              FlexibleID                     `json:"id"`
	Handle          string                         `json:"handle"`
	Title           string                         `json:"title"`
	Description     string                         `json:"description"`
	DescriptionHTML string                         `json:"descriptionHtml"`
	Status          string                         `json:"status"`
	Vendor          string                         `json:"vendor"`
	ProductType     string                         `json:"productType"`
	Tags            Tags                           `json:"tags"`
	FeaturedImage   *graphImage                    `json:"featuredImage"`
	Options         []graphOption                  `json:"options"`
	PublishedAt     string                         `json:"publishedAt"`
	UpdatedAt       string                         `json:"updatedAt"`
	Variants        Connection[graphVariant]       `json:"variants"`
	Collections     Connection[graphCollectionRef] `json:"collections"`
}

type graphCollection struct {
	ID          FlexibleID  `json:"id"`
	Handle      string      `json:"handle"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Image       *graphImage `json:"image"`
	UpdatedAt   string      `json:"updatedAt"`
}

type restImage struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type restVariant struct {
	ID                FlexibleID `json:"id"`
	ProductID         FlexibleID `json:"product_id"`
	SKU               string     `json:"sku"`
	Title             string     `json:"title"`
	Price             Money      `json:"price"`
	CompareAtPrice    Money      `json:"compare_at_price"`
	InventoryQuantity *int       `json:"inventory_quantity"`
	InventoryPolicy   string     `json:"inventory_policy"`
	Option1           string     `json:"option1"`
	Option2           string     `json:"option2"`
	Option3           string     `json:"option3"`
	UpdatedAt         string     `json:"updated_at"`
}

type restOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

type restProduct struct {
	ID          FlexibleID    `json:"id"`
	GraphID     string        `json:"admin_graphql_api_id"`
	Handle      string        `json:"handle"`
	Title       string        `json:"title"`
	BodyHTML    string        `json:"body_html"`
	Status      string        `json:"status"`
	Vendor      string        `json:"vendor"`
	ProductType string        `json:"product_type"`
	Tags        Tags          `json:"tags"`
	Image       *restImage    `json:"image"`
	Options     []restOption  `json:"options"`
	PublishedAt string        `json:"published_at"`
	UpdatedAt   string        `json:"updated_at"`
	Variants    []restVariant `json:"variants"`
}

type restCollection struct {
	ID        FlexibleID `json:"id"`
	GraphID   string     `json:"admin_graphql_api_id"`
	Handle    string     `json:"handle"`
	Title     string     `json:"title"`
	BodyHTML  string     `json:"body_html"`
	Image     *restImage `json:"image"`
	UpdatedAt string     `json:"updated_at"`
}
