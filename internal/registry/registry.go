package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/routerws/internal/domain"
)

// Registry is the authoritative set of live connections.
type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
}

func New() *Registry {
	return &Registry{connections: make(map[uuid.UUID]*Connection)}
}

// Register adds conn to the live set.
func (r *Registry) Register(conn *Connection) error {
	if !conn.Alive() {
		return domain.ErrConnectionClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRegistered, conn.ID())
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Deregister removes conn and closes it. When Deregister returns, conn no
// longer accepts sends and its writer has exited. It reports whether this call
// removed the entry; repeated calls are no-ops that return false.
func (r *Registry) Deregister(conn *Connection) bool {
	r.mu.Lock()
	current, exists := r.connections[conn.ID()]
	removed := exists && current == conn
	if removed {
		delete(r.connections, conn.ID())
	}
	r.mu.Unlock()

	conn.Close()
	return removed
}

// Snapshot returns the members at the moment of the call.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// ForEach calls visit for every member of a snapshot taken at the start of the
// call. visit runs outside the lock.
func (r *Registry) ForEach(visit func(*Connection)) {
	for _, conn := range r.Snapshot() {
		visit(conn)
	}
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll empties the registry and closes every member with a close frame
// carrying reason. Returns the number of connections closed.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	members := r.connections
	r.connections = make(map[uuid.UUID]*Connection)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range members {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.CloseGraceful(reason)
		}()
	}
	wg.Wait()

	return len(members)
}
