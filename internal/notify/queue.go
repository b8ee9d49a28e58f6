// Package notify keeps the transient notifications of one client until the
// next page shows them.
package notify

import (
	"sync"
	"time"
)

// Kind of notification.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Notification is shown once.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// DefaultCapacity bounds a Queue created with NewQueue(0).
const DefaultCapacity = 16

// Queue holds pending notifications, dropping the oldest when full.
type Queue struct {
	mu    sync.Mutex
	cap   int
	items []Notification
	now   func() time.Time
}

// NewQueue returns a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{cap: capacity, now: time.Now}
}

// Push appends a notification. Empty messages are ignored.
func (q *Queue) Push(kind Kind, msg string) {
	if msg == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, Notification{Kind: kind, Message: msg, At: q.now().UTC()})
}

func (q *Queue) Success(msg string) { q.Push(Success, msg) }
func (q *Queue) Error(msg string)   { q.Push(Error, msg) }
func (q *Queue) Info(msg string)    { q.Push(Info, msg) }

// Drain returns and removes everything pending, oldest first.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports how many notifications are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
