// Package dashboard fans accepted alerts out to live subscribers such as the
// HTTP alert stream.
package dashboard

import (
	"context"
	"sync"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

// Broadcaster delivers every alert to all current subscribers.
// A subscriber whose buffer is full misses the alert; Notify never blocks.
type Broadcaster struct {
	mu      sync.Mutex
	enabled bool
	buffer  int
	nextID  int
	subs    map[int]chan alert.Alert
	dropped int64
}

var _ ports.NotificationChannel = (*Broadcaster)(nil)

// New creates an enabled broadcaster. buffer <= 0 uses DefaultBuffer.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		enabled: true,
		buffer:  buffer,
		subs:    make(map[int]chan alert.Alert),
	}
}

// SetEnabled toggles delivery.
func (b *Broadcaster) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

func (b *Broadcaster) Name() string       { return "dashboard" }
func (b *Broadcaster) CriticalOnly() bool { return false }

func (b *Broadcaster) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Subscribe registers a subscriber. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan alert.Alert, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan alert.Alert, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broadcaster) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Notify hands a copy of the alert to each subscriber.
func (b *Broadcaster) Notify(_ context.Context, a alert.Alert) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return domainerrors.ErrChannelUnavailable
	}
	for _, ch := range b.subs {
		select {
		case ch <- a.Clone():
		default:
			b.dropped++
		}
	}
	return nil
}

// Close unregisters every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
