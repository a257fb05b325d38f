// Package cache provides a bounded, thread-safe LRU cache whose entries
// expire after a per-entry TTL.
//
// It backs short-lived single-use records, such as launch token nonces, when
// no Redis instance is configured:
//
//	c := cache.New[string, string](10_000)
//	c.Put("nonce", "user-1", 5*time.Minute)
//	user, ok := c.Take("nonce") // removes the entry
//
// Expired entries are dropped lazily on access and by LRU eviction once the
// capacity is reached.
package cache
