// Package sync walks the external catalog page by page and applies each page
// to the catalog store, advancing a per-resource cursor that never moves
// backward. A lease per resource kind keeps concurrent invocations from
// walking the same kind at once.
package sync
