package exam

import (
	"sync"

	"github.com/google/uuid"
)

// Identity kinds held by the registry.
const (
	IdentitySupervisor  = "supervisor"
	IdentityParticipant = "participant"
)

// Identity says who is behind a live connection: the supervisor of a
// session, or one participant of it. LearnerID is only set for
// participants.
type Identity struct {
	Kind      string
	GroupCode string
	LearnerID uuid.UUID
}

func SupervisorIdentity(groupCode string) Identity {
	return Identity{Kind: IdentitySupervisor, GroupCode: groupCode}
}

func ParticipantIdentity(groupCode string, learnerID uuid.UUID) Identity {
	return Identity{Kind: IdentityParticipant, GroupCode: groupCode, LearnerID: learnerID}
}

// Registry maps live connection ids to identities. Entries are weak
// references: removing one never touches the session or participant it
// points to.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Identity
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Identity)}
}

func (r *Registry) Register(connID string, ident Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = ident
}

func (r *Registry) Lookup(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.conns[connID]
	return ident, ok
}

// Remove deletes the entry and returns what it pointed to, so disconnect
// handling can resolve the connection exactly once.
func (r *Registry) Remove(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	return ident, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
