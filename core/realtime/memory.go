package realtime

import (
	"context"
	"sync"
)

// MemoryBus is an in-memory Bus for single-process deployments and tests.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Event)}
}

// Publish sends evt to all subscribers of key.
func (b *MemoryBus) Publish(ctx context.Context, key string, evt Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	chans := append([]chan Event(nil), b.subs[key]...)
	b.mu.Unlock()
	for _, ch := range chans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- evt:
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel for key.
func (b *MemoryBus) Subscribe(ctx context.Context, key string) (<-chan Event, func() error, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[key] = append(b.subs[key], ch)
	b.mu.Unlock()

	var once sync.Once
	stop := func() error {
		once.Do(func() { b.unsubscribe(key, ch) })
		return nil
	}
	go func() {
		<-ctx.Done()
		_ = stop()
	}()
	return ch, stop, nil
}

func (b *MemoryBus) unsubscribe(key string, ch chan Event) {
	b.mu.Lock()
	subs := b.subs[key]
	for i, c := range subs {
		if c == ch {
			subs = append(subs[:i], subs[i+1:]...)
			b.subs[key] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, key)
	}
	b.mu.Unlock()
}
