package core

import (
	"errors"
	"testing"
)

func TestParseResourceKind(t *testing.T) {
	cases := map[string]ResourceKind{
		"products":      ResourceProducts,
		" Collections ": ResourceCollections,
		"PRODUCTS":      ResourceProducts,
	}
	for input, want := range cases {
		got, err := ParseResourceKind(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %q, got %q", input, want, got)
		}
	}

	for _, input := range []string{"", "variants", "product"} {
		if _, err := ParseResourceKind(input); !errors.Is(err, ErrInvalidResource) {
			t.Fatalf("parse %q: expected ErrInvalidResource, got %v", input, err)
		}
	}
}

func TestResourceKinds_ReconcileProductsFirst(t *testing.T) {
	kinds := ResourceKinds()
	if len(kinds) != 2 || kinds[0] != ResourceProducts || kinds[1] != ResourceCollections {
		t.Fatalf("unexpected resource kinds %v", kinds)
	}
	kinds[0] = "mutated"
	if ResourceKinds()[0] != ResourceProducts {
		t.Fatalf("expected a fresh slice per call")
	}
}

func TestUpsertCatalogResultAdd(t *testing.T) {
	total := UpsertCatalogResult{ProductsUpserted: 2, VariantsUpserted: 5, ProductsSkipped: 1}
	total = total.Add(UpsertCatalogResult{
		ProductsUpserted:    1,
		CollectionsUpserted: 3,
		VariantsUpserted:    2,
		CollectionsSkipped:  4,
	})

	want := UpsertCatalogResult{
		ProductsUpserted:    3,
		CollectionsUpserted: 3,
		VariantsUpserted:    7,
		ProductsSkipped:     1,
		CollectionsSkipped:  4,
	}
	if total != want {
		t.Fatalf("expected %+v, got %+v", want, total)
	}
}
