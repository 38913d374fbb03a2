// Package mapping translates vendor catalog payloads into canonical snapshots.
//
// Two wire shapes are understood: nodes returned by the paginated catalog
// query and bodies delivered by webhooks. Mapping is pure; it fails only when
// a payload is structurally invalid or lacks the identity and update
// timestamp every snapshot needs.
package mapping
