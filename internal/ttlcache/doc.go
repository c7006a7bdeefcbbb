// Package ttlcache implements a bounded, single-process key-value cache with
// per-entry expiration.
//
// Expired entries are invisible to readers even while still resident: Get and
// Has evict them lazily. When the cache is full, Set first reclaims every
// expired entry and, if that is not enough, drops the entry that was created
// first. Eviction is by creation order, not by access recency; reads never
// reorder entries.
//
// A Cache optionally owns a background sweep goroutine. Call Close to stop it.
package ttlcache
