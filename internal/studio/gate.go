package studio

import (
	"sync"
	"time"
)

// GateStatus is a snapshot of the upgrade gate for the status surface.
type GateStatus struct {
	Gated  bool      `json:"gated"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since,omitzero"`
}

// gate is the app-wide "upgrade required" latch. Any operation that fails
// with an auth/quota classification trips it; it stays tripped until the
// user re-selects credentials and clears it.
type gate struct {
	mu     sync.RWMutex
	gated  bool
	reason string
	since  time.Time
}

// trip latches the gate. The first trip wins; later trips keep the original
// reason so the status surface reports what actually caused the outage.
func (g *gate) trip(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gated {
		return
	}
	g.gated = true
	g.reason = reason
	g.since = time.Now().UTC()
}

// clear re-opens the gate. Optimistic: the next classified failure trips it
// again.
func (g *gate) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gated = false
	g.reason = ""
	g.since = time.Time{}
}

func (g *gate) status() GateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GateStatus{Gated: g.gated, Reason: g.reason, Since: g.since}
}
