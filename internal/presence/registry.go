// Package presence tracks which identities are connected and which channels
// each of them has joined.
package presence

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrRejected = errors.New("authentication rejected")

// Conn is a live connection handle as seen by the registry.
type Conn interface {
	ID() uuid.UUID
	Identity() string
	Send(data []byte) error
	Close(reason string)
}

type entry struct {
	conn   Conn
	joined map[string]struct{}
}

// Registry maps identities to their current connection and joined channels.
// All reads observe the state as of the last completed write.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register makes c the connection for identity, replacing any earlier one.
// The replaced connection is returned so the caller can decide what to do
// with it; Register itself never closes it.
func (r *Registry) Register(identity string, c Conn) (Conn, error) {
	if identity == "" {
		return nil, ErrRejected
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var prev Conn
	if e, ok := r.entries[identity]; ok && e.conn.ID() != c.ID() {
		prev = e.conn
	}
	r.entries[identity] = &entry{conn: c, joined: make(map[string]struct{})}
	return prev, nil
}

// Unregister removes identity if c is still its registered connection. It
// reports whether an entry was removed.
func (r *Registry) Unregister(identity string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[identity]
	if !ok || e.conn.ID() != c.ID() {
		return false
	}
	delete(r.entries, identity)
	return true
}

// Join is a no-op for unknown identities and already joined channels.
func (r *Registry) Join(identity, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[identity]; ok {
		e.joined[channelID] = struct{}{}
	}
}

func (r *Registry) Leave(identity, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[identity]; ok {
		delete(e.joined, channelID)
	}
}

// MembersOf returns the connections currently joined to channelID.
func (r *Registry) MembersOf(channelID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Conn
	for _, e := range r.entries {
		if _, ok := e.joined[channelID]; ok {
			members = append(members, e.conn)
		}
	}
	return members
}

// All returns every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.entries))
	for _, e := range r.entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// Evict removes channelID from every joined set and returns the connections
// that had joined it.
func (r *Registry) Evict(channelID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Conn
	for _, e := range r.entries {
		if _, ok := e.joined[channelID]; ok {
			delete(e.joined, channelID)
			evicted = append(evicted, e.conn)
		}
	}
	return evicted
}

// Joined reports whether identity has joined channelID.
func (r *Registry) Joined(identity, channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identity]
	if !ok {
		return false
	}
	_, ok = e.joined[channelID]
	return ok
}

// Lookup returns the current connection for identity.
func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identity]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
