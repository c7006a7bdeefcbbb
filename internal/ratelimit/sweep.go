package ratelimit

import "time"

// Sweep forgets clients with no request left in the window that have not been
// seen since the window started. It returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)
	removed := 0
	for id, w := range l.clients {
		w.prune(windowStart)
		if len(w.timestamps) == 0 && w.lastSeen.Before(windowStart) {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
