package notify

import (
	"fmt"
	"testing"
)

func TestDrainEmptiesQueue(t *testing.T) {
	q := NewQueue(0)
	q.Success("Welcome back, Amina!")
	q.Error("Invalid username or password")
	q.Info("")

	got := q.Drain()
	if len(got) != 2 {
		t.Fatalf("drained %d, want 2", len(got))
	}
	if got[0].Kind != Success || got[1].Kind != Error {
		t.Fatalf("unexpected order %+v", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Fatal("queue must be empty after drain")
	}
}

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		q.Info(fmt.Sprintf("n%d", i))
	}
	got := q.Drain()
	if len(got) != 3 || got[0].Message != "n2" || got[2].Message != "n4" {
		t.Fatalf("unexpected items %+v", got)
	}
}
