package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// GIDPrefix marks an identifier that is already in canonical composite form.
const GIDPrefix = "gid://shopify/"

const (
	TypeProduct        = "Product"
	TypeProductVariant = "ProductVariant"
	TypeCollection     = "Collection"
)

// CanonicalID passes canonical ids through and synthesizes one from a raw id
// otherwise. Blank input yields "".
func CanonicalID(resourceType string, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, GIDPrefix) {
		return raw
	}
	return GIDPrefix + resourceType + "/" + raw
}

// FlexibleID decodes an identifier sent either as a JSON number or a string.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("mapping: id must be a string or number: %w", err)
	}
	*id = FlexibleID(number.String())
	return nil
}

func (id FlexibleID) String() string {
	return string(id)
}
