package daemon

import (
	"sync"
	"time"
)

// eventDedupeCache drops redelivered transport events. Transports redeliver
// on reconnect, so every inbound event carries an ID that is remembered for a
// TTL window.
type eventDedupeCache struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func newEventDedupeCache(ttl time.Duration) *eventDedupeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &eventDedupeCache{
		ttl:    ttl,
		seen:   make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
}

// Seen marks the key and reports whether it was already present within the
// TTL window. Check and mark are one step so concurrent redeliveries cannot
// both pass.
func (c *eventDedupeCache) Seen(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.seen[key]
	c.seen[key] = now
	return ok && now.Sub(ts) <= c.ttl
}

func (c *eventDedupeCache) Start() {
	c.startOnce.Do(func() {
		interval := c.ttl / 2
		if interval > 30*time.Second {
			interval = 30 * time.Second
		}
		if interval <= 0 {
			interval = time.Minute
		}

		ticker := time.NewTicker(interval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.sweep()
				case <-c.stopCh:
					return
				}
			}
		}()
	})
}

func (c *eventDedupeCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *eventDedupeCache) sweep() {
	now := time.Now()

	c.mu.Lock()
	for key, ts := range c.seen {
		if now.Sub(ts) > c.ttl {
			delete(c.seen, key)
		}
	}
	c.mu.Unlock()
}
