package hub

import (
	"sync"
	"time"

	"github.com/samcore-io/samcore/internal/wire"
)

// registeredNode is the hub's record of one named connection, per §3's
// node registration entry: {name, connection handle, connected-at}.
type registeredNode struct {
	name        string
	conn        *wire.Conn
	connectedAt time.Time
}

// registry is the hub's name→connection table. One mutex guards it,
// grounded in the teacher's connMux pattern (broker.Service.connMux).
type registry struct {
	mu    sync.RWMutex
	nodes map[string]*registeredNode
}

func newRegistry() *registry {
	return &registry{nodes: map[string]*registeredNode{}}
}

// register records name→c, replacing any prior connection under the same
// name. §3: "exactly one entry per name: re-registering the same name
// replaces the prior handle."
func (r *registry) register(name string, c *wire.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[name] = &registeredNode{name: name, conn: c, connectedAt: time.Now()}
}

// unregisterConn removes whatever entry (if any) currently points at c,
// used when a connection drops and we don't otherwise know its name.
func (r *registry) unregisterConn(c *wire.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, n := range r.nodes {
		if n.conn == c {
			delete(r.nodes, name)
		}
	}
}

func (r *registry) lookup(name string) (*registeredNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

func (r *registry) exists(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// snapshot returns a point-in-time copy of the registry entries, safe to
// range over without holding the lock (used by the wellness sweep).
func (r *registry) snapshot() []*registeredNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*registeredNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// removeIfStale drops name from the registry only if it still points at c,
// avoiding a race where name was re-registered to a newer connection
// between the sweep's snapshot and its removal.
func (r *registry) removeIfStale(name string, c *wire.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[name]; ok && n.conn == c {
		delete(r.nodes, name)
	}
}
