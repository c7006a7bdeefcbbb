// Package ratelimit throttles clients with a sliding window: every decision
// counts the requests a client made in the trailing window ending now, not in
// aligned buckets.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Config configures a Limiter.
type Config struct {
	// Limit is the number of requests a client may make per Window.
	Limit  int
	Window time.Duration
	// SweepInterval <= 0 disables the background sweep of idle clients.
	SweepInterval time.Duration

	Now func() time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	// ResetTime is when the oldest counted request leaves the window.
	ResetTime time.Time
}

// RetryAfter returns the whole seconds a rejected client should wait, at
// least one.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type window struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// Limiter keeps one window per client. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window

	limit  int
	window time.Duration
	now    func() time.Time

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	sweepEvery time.Duration
	closeOnce  sync.Once
}

// New constructs a Limiter and starts its sweep loop if enabled.
func New(cfg Config) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		clients:    make(map[string]*window),
		limit:      cfg.Limit,
		window:     cfg.Window,
		now:        now,
		ctx:        ctx,
		cancel:     cancel,
		sweepEvery: cfg.SweepInterval,
	}

	if l.sweepEvery > 0 {
		l.wg.Add(1)
		go l.sweepLoop()
	}
	return l
}

// Allow records a request for clientID if it fits in the window.
func (l *Limiter) Allow(clientID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	w, ok := l.clients[clientID]
	if !ok {
		w = &window{}
		l.clients[clientID] = w
	}
	w.lastSeen = now
	w.prune(windowStart)

	allowed := len(w.timestamps) < l.limit
	if allowed {
		w.timestamps = append(w.timestamps, now)
	}

	reset := now.Add(l.window)
	if len(w.timestamps) > 0 {
		reset = w.timestamps[0].Add(l.window)
	}

	return Decision{
		Allowed:   allowed,
		Remaining: max(0, l.limit-len(w.timestamps)),
		Limit:     l.limit,
		ResetTime: reset,
	}
}

// Clients returns how many clients are tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops the sweep loop. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		l.cancel()
		l.wg.Wait()
	})
}

// prune drops timestamps at or before windowStart. Timestamps are appended in
// order, so the kept ones form a suffix.
func (w *window) prune(windowStart time.Time) {
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(windowStart) {
		i++
	}
	if i == 0 {
		return
	}
	kept := copy(w.timestamps, w.timestamps[i:])
	clear(w.timestamps[kept:])
	w.timestamps = w.timestamps[:kept]
}
