// Package bus is a lightweight in-process broadcast channel for pipeline
// notices. Unlike a single-consumer queue, every subscriber sees every
// notice: a lockout must reach all active presentation surfaces.
package bus

import "sync"

// Kind represents the type of notice carried on the bus.
type Kind string

const (
	// Lockout tells every surface the daily quota is exhausted. Consumers
	// must at minimum redirect or terminate.
	Lockout Kind = "LOCKOUT"
	// ModeChanged announces a change to classification routing configuration.
	ModeChanged Kind = "MODE_CHANGED"
)

// Notice is one broadcast message.
type Notice struct {
	Kind   Kind
	Detail string
}

// Bus fans notices out to all subscribers. Publish never blocks: a subscriber
// with a full buffer misses the notice rather than stalling the quota path.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Notice
	nextID int
	buffer int
}

// New creates a bus whose subscriber channels hold buffer notices.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 8
	}
	return &Bus{subs: make(map[int]chan Notice), buffer: buffer}
}

// Subscribe registers a new consumer and returns its channel plus a cancel
// function. Cancel is idempotent.
func (b *Bus) Subscribe() (<-chan Notice, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Notice, b.buffer)
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

// Publish delivers n to every subscriber without blocking. It returns the
// number of subscribers that received it.
func (b *Bus) Publish(n Notice) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- n:
			delivered++
		default:
			// slow consumer; drop rather than block
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
