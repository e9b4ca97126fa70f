package events

import (
	"sync"
	"time"
)

// Kind labels a gate decision published on the bus.
type Kind string

const (
	KindLicenseValidated Kind = "license.validated"
	KindLicenseRejected  Kind = "license.rejected"
	KindLicenseCreated   Kind = "license.created"
	KindLicenseRevoked   Kind = "license.revoked"
	KindIPBlocked        Kind = "ip.blocked"
	KindIPUnblocked      Kind = "ip.unblocked"
	KindAuthFailed       Kind = "auth.failed"
)

// Event is a single audit record emitted by the gating pipeline.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	IP     string    `json:"ip,omitempty"`
	Key    string    `json:"key,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Bus fans audit events out to subscribers. Publishing never blocks the
// request path: a subscriber that cannot keep up has events dropped rather
// than stalling the gate.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber channel. The returned cancel func
// must be called when the subscriber goes away.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}
