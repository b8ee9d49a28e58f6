package session

import (
	"context"
	"sync"
)

const feedBuffer = 8

// Feed fans snapshots out to every subscriber.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]chan Snapshot
	next int
}

// NewFeed returns a feed with no subscribers.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Snapshot)}
}

// Subscribe registers a subscriber. The channel is closed when ctx ends.
func (f *Feed) Subscribe(ctx context.Context) <-chan Snapshot {
	return f.subscribe(ctx, nil)
}

// SubscribeFrom is Subscribe with current queued as the first value.
func (f *Feed) SubscribeFrom(ctx context.Context, current Snapshot) <-chan Snapshot {
	return f.subscribe(ctx, &current)
}

func (f *Feed) subscribe(ctx context.Context, first *Snapshot) <-chan Snapshot {
	ch := make(chan Snapshot, feedBuffer)
	if first != nil {
		ch <- *first
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// Publish delivers snap to every subscriber that has room for it.
func (f *Feed) Publish(snap Snapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			// slow subscriber, it will catch up on the next change
		}
	}
}

// Len returns the number of live subscribers.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
