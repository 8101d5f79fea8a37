package broadcast

import (
	"context"
	"sync"
)

// Broadcaster distributes every value of one input stream to every
// subscriber independently. Subscribers get their own bounded channel, so a
// slow consumer exerts backpressure on the producer instead of starving its
// siblings of their copy.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     []chan T
	capacity int
	running  bool
}

// New creates a broadcaster whose subscriber channels hold capacity values.
func New[T any](capacity int) *Broadcaster[T] {
	return &Broadcaster[T]{capacity: capacity}
}

// Subscribe registers a new consumer. All subscriptions must happen before
// Run starts pumping.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		panic("broadcast: Subscribe after Run")
	}
	ch := make(chan T, b.capacity)
	b.subs = append(b.subs, ch)
	return ch
}

// Run pumps the input stream until it closes or the context is cancelled,
// then closes every subscriber channel. Each value is delivered to every
// subscriber; sends block when a subscriber buffer is full.
func (b *Broadcaster[T]) Run(ctx context.Context, in <-chan T) {
	b.mu.Lock()
	b.running = true
	subs := b.subs
	b.mu.Unlock()

	defer func() {
		for _, ch := range subs {
			close(ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			for _, ch := range subs {
				select {
				case ch <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
