package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mynextid/zk-kyc/models"
)

// Manager owns independent sessions keyed by ID. Sessions share only
// their stateless collaborators.
type Manager struct {
	cfg      Config
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Create starts a new idle session
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.cfg)
	m.mu.Lock()
	m.sessions[s.Snapshot().ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %q", models.ErrInvalidInput, id)
	}
	return s, nil
}

// Delete forgets a session; an in-flight run finishes unobserved
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.Reset()
		delete(m.sessions, id)
	}
	return ok
}

// IDs lists session identifiers in sorted order
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
