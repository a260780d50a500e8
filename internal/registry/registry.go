package registry

import (
	"fmt"
	"sync"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"go.uber.org/multierr"
)

// Conn is the server-side endpoint of one client session.
type Conn interface {
	ID() uint32
	Send(state engine.State) error
}

// Registry tracks live connections by id. It is safe for concurrent use;
// Broadcast sends outside the lock so Register/Unregister never wait on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint32]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[uint32]Conn)}
}

// Register adds conn, replacing any previous connection with the same id.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
}

// Unregister removes the connection and reports whether it was present.
func (r *Registry) Unregister(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *Registry) Get(id uint32) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) IDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint32, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast sends state to every live connection in no particular order.
// A failing connection is skipped; the returned error aggregates every
// failure and sent counts the successful deliveries.
func (r *Registry) Broadcast(state engine.State) (sent int, err error) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		// each receiver gets its own copy of the actuator slice
		if sendErr := c.Send(state.Clone()); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("connection %d: %w", c.ID(), sendErr))
			continue
		}
		sent++
	}
	return sent, err
}
