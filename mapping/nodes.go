package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-catalog-sync/core"
)

// NodeFailure records one catalog node that could not be mapped.
type NodeFailure struct {
	Index int
	Err   error
}

// PageSnapshots is the mapped content of one catalog page.
type PageSnapshots struct {
	Products    []core.ProductSnapshot
	Collections []core.CollectionSnapshot
	UpdatedAts  []string
	Failures    []NodeFailure

	// node index of each UpdatedAts entry
	indexes []int
}

// CursorCeiling is the greatest updated timestamp a walk may persist after
// this page. Pages arrive sorted by updatedAt, so stopping before the first
// failed node makes the next walk fetch that node again.
func (p PageSnapshots) CursorCeiling() string {
	if len(p.Failures) == 0 {
		return core.MaxISO(p.UpdatedAts)
	}
	firstFailure := p.Failures[0].Index
	for _, failure := range p.Failures[1:] {
		firstFailure = min(firstFailure, failure.Index)
	}
	ceiling := ""
	for i, updatedAt := range p.UpdatedAts {
		if i < len(p.indexes) && p.indexes[i] < firstFailure {
			ceiling = core.MergeCursor(ceiling, updatedAt)
		}
	}
	return ceiling
}

// PartialProducts counts products whose nested variants or collections were
// cut at the first page.
func (p PageSnapshots) PartialProducts() int {
	count := 0
	for _, product := range p.Products {
		if product.VariantsPartial || product.CollectionsPartial {
			count++
		}
	}
	return count
}

// MapPage maps every node of a page for resource, collecting failures
// instead of aborting on the first bad node.
func (m Mapper) MapPage(resource core.ResourceKind, nodes []json.RawMessage) (PageSnapshots, error) {
	out := PageSnapshots{}
	for idx, node := range nodes {
		switch resource {
		case core.ResourceProducts:
			product, err := m.ProductFromNode(node)
			if err != nil {
				out.Failures = append(out.Failures, NodeFailure{Index: idx, Err: err})
				continue
			}
			out.Products = append(out.Products, product)
			out.UpdatedAts = append(out.UpdatedAts, product.UpdatedAt)
			out.indexes = append(out.indexes, idx)
		case core.ResourceCollections:
			collection, err := m.CollectionFromNode(node)
			if err != nil {
				out.Failures = append(out.Failures, NodeFailure{Index: idx, Err: err})
				continue
			}
			out.Collections = append(out.Collections, collection)
			out.UpdatedAts = append(out.UpdatedAts, collection.UpdatedAt)
			out.indexes = append(out.indexes, idx)
		default:
			return PageSnapshots{}, fmt.Errorf("mapping: %w: %q", core.ErrInvalidResource, resource)
		}
	}
	return out, nil
}
