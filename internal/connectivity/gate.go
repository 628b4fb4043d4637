// Package connectivity holds the reachability signal consulted before any
// network work.
//
// The gate does not own the network. Something else (the prober, the host
// platform, a test) tells it what the current state is and the gate fans out
// transitions to subscribers.
package connectivity

import (
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler is called with the new state after every transition
type Handler func(online bool)

// Gate is a boolean reachability signal.
//
// Thread Safety: Gate is safe for concurrent use.
type Gate struct {
	online atomic.Bool

	mu     sync.RWMutex
	subs   map[string]Handler
	logger *log.Logger
}

// NewGate creates a gate in the given initial state
func NewGate(online bool, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	g := &Gate{
		subs:   make(map[string]Handler),
		logger: logger,
	}
	g.online.Store(online)
	return g
}

// Online reports the last known state
func (g *Gate) Online() bool {
	return g.online.Load()
}

// Set records the current state. Subscribers are notified only when the state
// changes, synchronously and in no particular order.
func (g *Gate) Set(online bool) {
	if !g.online.CompareAndSwap(!online, online) {
		return
	}

	if online {
		g.logger.Println("remote store reachable")
	} else {
		g.logger.Println("remote store unreachable")
	}

	g.mu.RLock()
	handlers := make([]Handler, 0, len(g.subs))
	for _, h := range g.subs {
		handlers = append(handlers, h)
	}
	g.mu.RUnlock()

	for _, h := range handlers {
		g.notify(h, online)
	}
}

func (g *Gate) notify(h Handler, online bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Printf("connectivity handler panicked: %v", r)
		}
	}()
	h(online)
}

// Subscribe registers a transition handler and returns its id
func (g *Gate) Subscribe(h Handler) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	g.subs[id] = h
	return id
}

// Unsubscribe removes a handler. It reports whether the id was registered.
func (g *Gate) Unsubscribe(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.subs[id]; !ok {
		return false
	}
	delete(g.subs, id)
	return true
}
