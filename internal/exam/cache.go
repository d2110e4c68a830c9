package exam

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"proctora-backend/internal/models"
)

// SessionState is the in-memory authority for one live session. It is
// owned exclusively by the Cache; participants are reachable only
// through it. The lock guards the participant map and the session
// record; individual participant field writes are last-write-wins
// across concurrent operations.
type SessionState struct {
	mu           sync.RWMutex
	Session      *models.Session
	participants map[uuid.UUID]*models.Participant
}

func NewSessionState(session *models.Session) *SessionState {
	return &SessionState{
		Session:      session,
		participants: make(map[uuid.UUID]*models.Participant),
	}
}

// Participant looks up by learner id. Joins enforce one participant per
// (session, learner), so the learner id is the natural key.
func (s *SessionState) Participant(learnerID uuid.UUID) (*models.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[learnerID]
	return p, ok
}

func (s *SessionState) PutParticipant(p *models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.LearnerID] = p
}

// Participants returns the live records. Callers mutate them in place;
// the slice itself is a fresh copy so iteration never races the map.
func (s *SessionState) Participants() []*models.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}

// Snapshot copies session and participant attributes for read-only use.
func (s *SessionState) Snapshot() *models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &models.SessionSnapshot{
		ID:           s.Session.ID,
		GroupCode:    s.Session.GroupCode,
		ScheduleID:   s.Session.ScheduleID,
		Status:       s.Session.Status,
		StartedAt:    s.Session.StartedAt,
		EndedAt:      s.Session.EndedAt,
		Participants: make([]models.Participant, 0, len(s.participants)),
	}
	for _, p := range s.participants {
		snap.Participants = append(snap.Participants, *p)
	}
	return snap
}

// Cache maps group codes to session state. Entries hydrate lazily from
// the store on first touch and live until process restart; ended
// sessions are not evicted.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
	store    Store
}

func NewCache(store Store) *Cache {
	return &Cache{
		sessions: make(map[string]*SessionState),
		store:    store,
	}
}

// Get returns the cached state for code, hydrating from the store on
// first reference. Returns (nil, nil) when no such session exists.
func (c *Cache) Get(ctx context.Context, code string) (*SessionState, error) {
	c.mu.RLock()
	state, ok := c.sessions[code]
	c.mu.RUnlock()
	if ok {
		return state, nil
	}

	session, err := c.store.SessionByGroupCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", code, err)
	}
	if session == nil {
		return nil, nil
	}

	participants, err := c.store.ParticipantsBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants for %s: %w", code, err)
	}

	state = NewSessionState(session)
	for i := range participants {
		p := participants[i]
		// chat_enabled is not persisted; hydration resets it.
		p.ChatEnabled = true
		state.participants[p.LearnerID] = &p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another hydration may have won the race; once cached, the cached
	// copy is authoritative.
	if existing, ok := c.sessions[code]; ok {
		return existing, nil
	}
	c.sessions[code] = state
	return state, nil
}

// Put seeds a freshly created session without a store round trip.
func (c *Cache) Put(state *SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[state.Session.GroupCode] = state
}

func (c *Cache) Contains(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[code]
	return ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
