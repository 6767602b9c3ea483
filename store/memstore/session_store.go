package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/convoflow/flowmigrate/types"
)

// SessionStore is an in-memory session store. Safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	now      func() time.Time
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*types.Session),
		now:      time.Now,
	}
}

// GetSession returns a session by id.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
	}
	return cloneSession(session), nil
}

// SaveSession persists the session.
func (s *SessionStore) SaveSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// FindSessionsByStepHash returns the sessions sitting at a step with the
// given content hash in the given scenario version, subject to the scope
// filter. Results are ordered by session id for determinism.
func (s *SessionStore) FindSessionsByStepHash(ctx context.Context, tenantID, scenarioID string, version int, hash types.ContentHash, filter types.ScopeFilter) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var matched []*types.Session
	for _, session := range s.sessions {
		if session.TenantID != tenantID ||
			session.ActiveScenarioID != scenarioID ||
			session.ActiveScenarioVersion != version ||
			session.ActiveStepHash != hash {
			continue
		}
		if !filter.Matches(session, now) {
			continue
		}
		matched = append(matched, cloneSession(session))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// cloneSession copies the session with fresh map and slice storage.
// Variables values are shared; the store treats them as immutable.
func cloneSession(session *types.Session) *types.Session {
	clone := *session
	clone.Variables = maps.Clone(session.Variables)
	clone.StepHistory = slices.Clone(session.StepHistory)
	if session.PendingMigration != nil {
		pending := *session.PendingMigration
		clone.PendingMigration = &pending
	}
	return &clone
}
