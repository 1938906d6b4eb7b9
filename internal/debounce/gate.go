// Package debounce suppresses repeated triggers of the same event within a cooldown interval.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum time between two admitted triggers of one name.
const DefaultInterval = 500 * time.Millisecond

// Gate tracks the last admitted time per name.
type Gate struct {
	interval time.Duration
	last     map[string]time.Time
	mu       sync.Mutex
}

// NewGate creates a Gate. A non-positive interval uses DefaultInterval.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Admit reports whether name may fire at now, and records now if so.
// A name that has never fired is always admitted.
func (g *Gate) Admit(name string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[name]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.last[name] = now
	return true
}

// Last returns when name was last admitted.
func (g *Gate) Last(name string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.last[name]
	return t, ok
}

// Interval returns the cooldown interval.
func (g *Gate) Interval() time.Duration {
	return g.interval
}
