package shopify

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultDomainSuffix = ".myshopify.com"
	DefaultAPIVersion   = "2024-10"
)

// NormalizeShopDomain accepts a bare shop name, a myshopify host or a URL and
// returns the canonical "<shop>.myshopify.com" host.
func NormalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop_domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop_domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop_domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop_domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}

// AdminGraphQLEndpoint returns https://<shop>/admin/api/<version>/graphql.json.
func AdminGraphQLEndpoint(shopDomain string, apiVersion string) (string, error) {
	domain, err := NormalizeShopDomain(shopDomain)
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(apiVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	return (&url.URL{
		Scheme: "https",
		Host:   domain,
		Path:   "/admin/api/" + version + "/graphql.json",
	}).String(), nil
}
