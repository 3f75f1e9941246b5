package utils

import (
	"sync"
	"time"
)

// Cooldown rate limits keys to one use per period. Expired keys are pruned on access.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, last: make(map[string]time.Time)}
}

// Allow records a use of key at now and returns zero, or returns the remaining wait without recording.
func (c *Cooldown) Allow(key string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, at := range c.last {
		if now.Sub(at) >= c.period {
			delete(c.last, k)
		}
	}
	if at, ok := c.last[key]; ok {
		return c.period - now.Sub(at)
	}
	c.last[key] = now
	return 0
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
