// Package portal keeps the live per-client state of the web portal: one
// session store, one attendance screen and one notification queue per
// browser.
package portal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"noorstitching.org/internal/attendance"
	"noorstitching.org/internal/audit"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/notify"
	"noorstitching.org/internal/obs"
	"noorstitching.org/internal/session"
)

const (
	defaultIdleTTL   = 30 * time.Minute
	defaultOpTimeout = 15 * time.Second
)

// Backend is everything a client's screens call.
type Backend interface {
	session.Backend
	attendance.Backend
}

// Client is the live state of one browser.
type Client struct {
	ID            string
	Session       *session.Store
	Attendance    *attendance.Screen
	Notifications *notify.Queue

	lastSeen atomic.Int64
}

func (c *Client) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

// LastSeen is when the client last made a request.
func (c *Client) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// Registry maps client ids to clients, creating them on first sight.
type Registry struct {
	api       Backend
	state     clientstate.Store
	idleTTL   time.Duration
	opTimeout time.Duration
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

// Option configures Registry.
type Option func(*Registry)

// WithIdleTTL sets how long an unused client stays in memory.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithOpTimeout bounds session operations detached from their request.
func WithOpTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(api Backend, state clientstate.Store, opts ...Option) *Registry {
	r := &Registry{
		api:       api,
		state:     state,
		idleTTL:   defaultIdleTTL,
		opTimeout: defaultOpTimeout,
		now:       time.Now,
		clients:   make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the client for id, creating it and starting its bootstrap in
// the background when it is not in memory.
func (r *Registry) Get(ctx context.Context, id string) *Client {
	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		c = r.newClient(id)
		r.clients[id] = c
	}
	n := len(r.clients)
	r.mu.Unlock()

	c.touch(r.now())
	if !ok {
		obs.SetActiveClients(n)
		bctx, cancel := r.Detach(audit.WithClientID(ctx, id))
		go func() {
			defer cancel()
			c.Session.Bootstrap(bctx)
		}()
	}
	return c
}

// Lookup returns the client for id without creating it.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) newClient(id string) *Client {
	queue := notify.NewQueue(0)
	return &Client{
		ID:            id,
		Session:       session.New(r.api, clientstate.TokensFor(r.state, id), session.WithNotifier(queue)),
		Attendance:    attendance.NewScreen(r.api),
		Notifications: queue,
	}
}

// Detach returns a context that survives the end of the request that
// started an operation, bounded by the operation timeout.
func (r *Registry) Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
}

// State exposes the client-state store.
func (r *Registry) State() clientstate.Store { return r.state }

// Len reports the number of clients in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep evicts clients idle for longer than the idle TTL. A client with an
// open session feed is never idle. Persisted state is kept; an evicted
// client bootstraps again on its next request.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	evicted := 0
	for id, c := range r.clients {
		if c.Session.Subscribers() > 0 {
			c.touch(r.now())
			continue
		}
		if c.LastSeen().Before(cutoff) {
			delete(r.clients, id)
			evicted++
		}
	}
	n := len(r.clients)
	r.mu.Unlock()
	if evicted > 0 {
		obs.SetActiveClients(n)
		obs.Logger().Debug("portal_clients_evicted", zap.Int("evicted", evicted), zap.Int("active", n))
	}
	return evicted
}

// Run sweeps periodically until ctx ends.
func (r *Registry) Run(ctx context.Context) {
	every := r.idleTTL / 4
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
