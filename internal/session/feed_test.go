package session

import (
	"context"
	"testing"
	"time"
)

func TestFeedFanOut(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	a := f.Subscribe(ctx)
	b := f.Subscribe(ctx)

	f.Publish(Snapshot{Loading: true})
	for _, ch := range []<-chan Snapshot{a, b} {
		select {
		case snap := <-ch:
			if !snap.Loading {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive snapshot")
		}
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for f.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscribers not removed after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.Subscribe(ctx)
	for i := 0; i < feedBuffer*3; i++ {
		f.Publish(Snapshot{})
	}
	if len(ch) != feedBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), feedBuffer)
	}
}
