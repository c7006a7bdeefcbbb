package ttlcache

import "time"

// expiryLoop periodically reclaims expired entries so values written once and
// never read again do not stay resident.
func (c *Cache[K, V]) expiryLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.deleteExpiredLocked(c.now())
			c.mu.Unlock()
		}
	}
}
