// Package core contains the canonical catalog domain: snapshots, webhook
// events, sync state, store contracts and the cursor ordering rules shared by
// the push and pull channels. Adapters depend on this package; core must not
// depend on provider-specific or storage-specific code.
package core
