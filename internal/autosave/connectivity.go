package autosave

import (
	"log/slog"
	"sync"
)

// Connectivity holds the online/offline signal and notifies subscribers on
// transitions. Sources (Prober, RealtimeWatcher, the CLI) call Set.
// Safe for concurrent use.
type Connectivity struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]func(online bool)
	nextSub int
	logger  *slog.Logger
}

// NewConnectivity returns a monitor starting in the given state.
func NewConnectivity(online bool, logger *slog.Logger) *Connectivity {
	return &Connectivity{
		online: online,
		subs:   make(map[int]func(bool)),
		logger: logger,
	}
}

// Online returns the current state.
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.online
}

// Set records the current state. Subscribers run only on transitions, on the
// caller's goroutine, after the monitor's lock is released.
func (c *Connectivity) Set(online bool) {
	c.mu.Lock()

	if c.online == online {
		c.mu.Unlock()
		return
	}

	c.online = online

	fns := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}

	c.mu.Unlock()

	c.logger.Info("connectivity changed", slog.Bool("online", online))

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers fn for transition events and returns a function that
// removes it.
func (c *Connectivity) Subscribe(fn func(online bool)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subs, id)
	}
}
