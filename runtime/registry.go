// Package runtime owns per-group coordination state: the registry of live
// facilitator connections and the turn arbitration. It orchestrates without
// containing domain rules.
package runtime

import (
	"sync"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
)

// ConnRegistry is the single place live facilitator connections exist.
// It is created at process start, injected into whoever needs a handle,
// and torn down at shutdown. Keyed by group id, at most one entry each.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[domain.GroupID]contract.FacilitatorConn
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[domain.GroupID]contract.FacilitatorConn)}
}

func (r *ConnRegistry) Get(groupID domain.GroupID) (contract.FacilitatorConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[groupID]
	return conn, ok
}

// Put installs a connection unless a live one is already registered.
// A stale (dead) entry is replaced and closed. Returns false when an alive
// connection kept its slot, enforcing at-most-one per group.
func (r *ConnRegistry) Put(groupID domain.GroupID, conn contract.FacilitatorConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[groupID]; ok {
		if existing.Alive() {
			return false
		}
		_ = existing.Close()
	}
	r.conns[groupID] = conn
	return true
}

// Remove drops the entry only when it still holds the given connection,
// so a teardown racing a fresh start never evicts the successor.
func (r *ConnRegistry) Remove(groupID domain.GroupID, conn contract.FacilitatorConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.conns[groupID]
	if !ok || existing != conn {
		return false
	}
	delete(r.conns, groupID)
	return true
}

// CloseAll tears down every connection at shutdown.
func (r *ConnRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for groupID, conn := range r.conns {
		_ = conn.Close()
		delete(r.conns, groupID)
	}
}
