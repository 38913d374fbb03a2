package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-catalog-sync/core"
)

const (
	DefaultCurrency = "USD"
	zeroPrice       = "0"
	policyContinue  = "continue"
)

type Mapper struct {
	DefaultCurrency string
}

func NewMapper(defaultCurrency string) Mapper {
	return Mapper{DefaultCurrency: defaultCurrency}
}

func (m Mapper) currency() string {
	if currency := strings.ToUpper(strings.TrimSpace(m.DefaultCurrency)); currency != "" {
		return currency
	}
	return DefaultCurrency
}

// ProductFromNode maps one product node of the catalog query.
func (m Mapper) ProductFromNode(raw json.RawMessage) (core.ProductSnapshot, error) {
	var node graphProduct
	if err := decodeObject(raw, &node); err != nil {
		return core.ProductSnapshot{}, mappingFailure(err, "decode product node", nil)
	}
	externalID := CanonicalID(TypeProduct, node.ID.String())
	if externalID == "" {
		return core.ProductSnapshot{}, mappingFailure(nil, "product node is missing id", nil)
	}
	updatedAt, err := requiredTimestamp(node.UpdatedAt, externalID)
	if err != nil {
		return core.ProductSnapshot{}, err
	}

	product := core.ProductSnapshot{
		ExternalID:      externalID,
		Handle:          strings.TrimSpace(node.Handle),
		Title:           node.Title,
		Description:     node.Description,
		DescriptionHTML: node.DescriptionHTML,
		Status:          normalizeStatus(node.Status),
		Vendor:          node.Vendor,
		ProductType:     node.ProductType,
		Tags:            []string(node.Tags),
		PublishedAt:     optionalTimestamp(node.PublishedAt),
		UpdatedAt:       updatedAt,

		VariantsPartial:    node.Variants.HasNextPage,
		CollectionsPartial: node.Collections.HasNextPage,
	}
	if product.Description == "" && product.DescriptionHTML != "" {
		product.Description = PlainText(product.DescriptionHTML)
	}
	if node.FeaturedImage != nil && strings.TrimSpace(node.FeaturedImage.URL) != "" {
		product.FeaturedImage = &core.Image{URL: strings.TrimSpace(node.FeaturedImage.URL), AltText: node.FeaturedImage.AltText}
	}
	for _, option := range node.Options {
		product.Options = append(product.Options, core.ProductOption{Name: option.Name, Values: append([]string(nil), option.Values...)})
	}
	for _, variant := range node.Variants.Items {
		mapped, err := m.variantFromNode(variant, externalID, updatedAt)
		if err != nil {
			return core.ProductSnapshot{}, err
		}
		product.Variants = append(product.Variants, mapped)
	}
	for _, ref := range node.Collections.Items {
		if id := CanonicalID(TypeCollection, ref.ID.String()); id != "" {
			product.CollectionIDs = append(product.CollectionIDs, id)
		}
	}
	m.applyPricing(&product)
	return product, nil
}

func (m Mapper) variantFromNode(node graphVariant, productID string, productUpdatedAt string) (core.VariantSnapshot, error) {
	externalID := CanonicalID(TypeProductVariant, node.ID.String())
	if externalID == "" {
		return core.VariantSnapshot{}, mappingFailure(nil, "variant node is missing id", map[string]any{"product_id": productID})
	}
	policy := strings.ToLower(strings.TrimSpace(node.InventoryPolicy))
	available := isAvailable(node.InventoryQuantity, policy)
	if node.InventoryQuantity == nil && node.AvailableForSale != nil {
		available = *node.AvailableForSale
	}
	variant := core.VariantSnapshot{
		ExternalID:      externalID,
		ProductID:       productID,
		SKU:             strings.TrimSpace(node.SKU),
		Title:           node.Title,
		Available:       available,
		Price:           priceOrZero(node.Price.Amount),
		CompareAtPrice:  strings.TrimSpace(node.CompareAtPrice.Amount),
		Currency:        firstNonEmpty(node.Price.CurrencyCode, m.currency()),
		InventoryPolicy: policy,
		UpdatedAt:       firstNonEmpty(optionalTimestamp(node.UpdatedAt), productUpdatedAt),
	}
	for _, option := range node.SelectedOptions {
		variant.SelectedOptions = append(variant.SelectedOptions, core.SelectedOption{Name: option.Name, Value: option.Value})
	}
	return variant, nil
}

// CollectionFromNode maps one collection node of the catalog query.
func (m Mapper) CollectionFromNode(raw json.RawMessage) (core.CollectionSnapshot, error) {
	var node graphCollection
	if err := decodeObject(raw, &node); err != nil {
		return core.CollectionSnapshot{}, mappingFailure(err, "decode collection node", nil)
	}
	externalID := CanonicalID(TypeCollection, node.ID.String())
	if externalID == "" {
		return core.CollectionSnapshot{}, mappingFailure(nil, "collection node is missing id", nil)
	}
	updatedAt, err := requiredTimestamp(node.UpdatedAt, externalID)
	if err != nil {
		return core.CollectionSnapshot{}, err
	}
	collection := core.CollectionSnapshot{
		ExternalID:  externalID,
		Handle:      strings.TrimSpace(node.Handle),
		Title:       node.Title,
		Description: node.Description,
		UpdatedAt:   updatedAt,
	}
	if node.Image != nil && strings.TrimSpace(node.Image.URL) != "" {
		collection.Image = &core.Image{URL: strings.TrimSpace(node.Image.URL), AltText: node.Image.AltText}
	}
	return collection, nil
}

// ProductFromWebhook maps a products/create or products/update body.
func (m Mapper) ProductFromWebhook(raw []byte) (core.ProductSnapshot, error) {
	var body restProduct
	if err := decodeObject(raw, &body); err != nil {
		return core.ProductSnapshot{}, mappingFailure(err, "decode product webhook", nil)
	}
	externalID := CanonicalID(TypeProduct, firstNonEmpty(body.GraphID, body.ID.String()))
	if externalID == "" {
		return core.ProductSnapshot{}, mappingFailure(nil, "product webhook is missing id", nil)
	}
	updatedAt, err := requiredTimestamp(body.UpdatedAt, externalID)
	if err != nil {
		return core.ProductSnapshot{}, err
	}

	product := core.ProductSnapshot{
		ExternalID:      externalID,
		Handle:          strings.TrimSpace(body.Handle),
		Title:           body.Title,
		Description:     PlainText(body.BodyHTML),
		DescriptionHTML: body.BodyHTML,
		Status:          normalizeStatus(body.Status),
		Vendor:          body.Vendor,
		ProductType:     body.ProductType,
		Tags:            []string(body.Tags),
		PublishedAt:     optionalTimestamp(body.PublishedAt),
		UpdatedAt:       updatedAt,
	}
	if body.Image != nil && strings.TrimSpace(body.Image.Src) != "" {
		product.FeaturedImage = &core.Image{URL: strings.TrimSpace(body.Image.Src), AltText: body.Image.Alt}
	}
	optionNames := make([]string, 0, len(body.Options))
	for _, option := range body.Options {
		product.Options = append(product.Options, core.ProductOption{Name: option.Name, Values: append([]string(nil), option.Values...)})
		optionNames = append(optionNames, option.Name)
	}
	for _, variant := range body.Variants {
		mapped, err := m.variantFromWebhook(variant, externalID, updatedAt, optionNames)
		if err != nil {
			return core.ProductSnapshot{}, err
		}
		product.Variants = append(product.Variants, mapped)
	}
	m.applyPricing(&product)
	return product, nil
}

func (m Mapper) variantFromWebhook(body restVariant, productID string, productUpdatedAt string, optionNames []string) (core.VariantSnapshot, error) {
	externalID := CanonicalID(TypeProductVariant, body.ID.String())
	if externalID == "" {
		return core.VariantSnapshot{}, mappingFailure(nil, "variant webhook entry is missing id", map[string]any{"product_id": productID})
	}
	policy := strings.ToLower(strings.TrimSpace(body.InventoryPolicy))
	variant := core.VariantSnapshot{
		ExternalID:      externalID,
		ProductID:       productID,
		SKU:             strings.TrimSpace(body.SKU),
		Title:           body.Title,
		Available:       isAvailable(body.InventoryQuantity, policy),
		Price:           priceOrZero(body.Price.Amount),
		CompareAtPrice:  strings.TrimSpace(body.CompareAtPrice.Amount),
		Currency:        firstNonEmpty(body.Price.CurrencyCode, m.currency()),
		InventoryPolicy: policy,
		UpdatedAt:       firstNonEmpty(optionalTimestamp(body.UpdatedAt), productUpdatedAt),
	}
	for idx, value := range []string{body.Option1, body.Option2, body.Option3} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		name := fmt.Sprintf("Option%d", idx+1)
		if idx < len(optionNames) && strings.TrimSpace(optionNames[idx]) != "" {
			name = optionNames[idx]
		}
		variant.SelectedOptions = append(variant.SelectedOptions, core.SelectedOption{Name: name, Value: value})
	}
	return variant, nil
}

// CollectionFromWebhook maps a collections/create or collections/update body.
func (m Mapper) CollectionFromWebhook(raw []byte) (core.CollectionSnapshot, error) {
	var body restCollection
	if err := decodeObject(raw, &body); err != nil {
		return core.CollectionSnapshot{}, mappingFailure(err, "decode collection webhook", nil)
	}
	externalID := CanonicalID(TypeCollection, firstNonEmpty(body.GraphID, body.ID.String()))
	if externalID == "" {
		return core.CollectionSnapshot{}, mappingFailure(nil, "collection webhook is missing id", nil)
	}
	updatedAt, err := requiredTimestamp(body.UpdatedAt, externalID)
	if err != nil {
		return core.CollectionSnapshot{}, err
	}
	collection := core.CollectionSnapshot{
		ExternalID:  externalID,
		Handle:      strings.TrimSpace(body.Handle),
		Title:       body.Title,
		Description: PlainText(body.BodyHTML),
		UpdatedAt:   updatedAt,
	}
	if body.Image != nil && strings.TrimSpace(body.Image.Src) != "" {
		collection.Image = &core.Image{URL: strings.TrimSpace(body.Image.Src), AltText: body.Image.Alt}
	}
	return collection, nil
}

// DeletedID extracts the canonical id from a */delete webhook body.
func (m Mapper) DeletedID(resourceType string, raw []byte) (string, error) {
	var body struct {
		ID      FlexibleID `json:"id"`
		GraphID string     `json:"admin_graphql_api_id"`
	}
	if err := decodeObject(raw, &body); err != nil {
		return "", mappingFailure(err, "decode delete webhook", nil)
	}
	externalID := CanonicalID(resourceType, firstNonEmpty(body.GraphID, body.ID.String()))
	if externalID == "" {
		return "", mappingFailure(nil, "delete webhook is missing id", nil)
	}
	return externalID, nil
}

// applyPricing derives min/max price and currency from the product variants.
func (m Mapper) applyPricing(product *core.ProductSnapshot) {
	product.MinPrice = zeroPrice
	product.MaxPrice = zeroPrice
	product.Currency = m.currency()
	if len(product.Variants) == 0 {
		return
	}
	product.Currency = firstNonEmpty(product.Variants[0].Currency, m.currency())

	var (
		found    bool
		minValue float64
		maxValue float64
	)
	for _, variant := range product.Variants {
		value, err := strconv.ParseFloat(variant.Price, 64)
		if err != nil {
			continue
		}
		if !found || value < minValue {
			minValue = value
			product.MinPrice = variant.Price
		}
		if !found || value > maxValue {
			maxValue = value
			product.MaxPrice = variant.Price
		}
		found = true
	}
}

func isAvailable(quantity *int, policy string) bool {
	if quantity != nil && *quantity > 0 {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(policy), policyContinue)
}

func normalizeStatus(value string) core.ProductStatus {
	switch core.ProductStatus(strings.ToLower(strings.TrimSpace(value))) {
	case core.ProductStatusActive:
		return core.ProductStatusActive
	case core.ProductStatusArchived:
		return core.ProductStatusArchived
	default:
		return core.ProductStatusDraft
	}
}

func priceOrZero(amount string) string {
	if amount = strings.TrimSpace(amount); amount != "" {
		return amount
	}
	return zeroPrice
}

func requiredTimestamp(value string, externalID string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", mappingFailure(nil, "updated timestamp is required", map[string]any{"external_id": externalID})
	}
	normalized, err := core.NormalizeTimestamp(value)
	if err != nil {
		return "", mappingFailure(err, "invalid updated timestamp", map[string]any{"external_id": externalID})
	}
	return normalized, nil
}

// optionalTimestamp drops values that cannot be normalized.
func optionalTimestamp(value string) string {
	normalized, err := core.NormalizeTimestamp(value)
	if err != nil {
		return ""
	}
	return normalized
}

// decodeObject rejects anything that is not a single JSON object.
func decodeObject(raw []byte, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("mapping: payload must be a JSON object")
	}
	return json.Unmarshal(trimmed, target)
}

func mappingFailure(source error, message string, metadata map[string]any) error {
	return core.MappingError(source, "mapping: "+message, metadata)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
