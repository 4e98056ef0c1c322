package state

import (
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const DefaultHistoryLength = 100

type Config struct {
	HistoryLength int `envconfig:"HISTORY_LENGTH" split_words:"true" default:"100"`
}

// Store is the session bookkeeping used by the router.
type Store interface {
	Touch(sessionID string, msg contractx.EndUserMessage)
	History(sessionID string) []contractx.EndUserMessage
	Clear(sessionID string)
	SetActiveAgent(sessionID string, agentType contractx.AgentType)
	ActiveAgent(sessionID string) (contractx.AgentType, bool)
	Len() int
}

// SessionState holds one conversation. History is a fixed-size ring: when full,
// the oldest entry is overwritten.
type SessionState struct {
	SessionID   string
	ActiveAgent contractx.AgentType
	UpdatedAt   time.Time

	ring  []contractx.EndUserMessage
	start int
	size  int
}

func newSessionState(sessionID string, capacity int, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		UpdatedAt: now.UTC(),
		ring:      make([]contractx.EndUserMessage, capacity),
	}
}

func (s *SessionState) append(msg contractx.EndUserMessage) {
	capacity := len(s.ring)
	if s.size < capacity {
		s.ring[(s.start+s.size)%capacity] = msg
		s.size++
		return
	}
	s.ring[s.start] = msg
	s.start = (s.start + 1) % capacity
}

func (s *SessionState) snapshot() []contractx.EndUserMessage {
	out := make([]contractx.EndUserMessage, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.start+i)%len(s.ring)]
	}
	return out
}

// MemoryStore keeps sessions in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
	capacity int
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(cfg Config) *MemoryStore {
	capacity := cfg.HistoryLength
	if capacity <= 0 {
		capacity = DefaultHistoryLength
	}
	return &MemoryStore{
		sessions: make(map[string]*SessionState),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *MemoryStore) Touch(sessionID string, msg contractx.EndUserMessage) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.getOrCreateLocked(sessionID)
	st.append(msg)
	st.UpdatedAt = m.now().UTC()
}

func (m *MemoryStore) History(sessionID string) []contractx.EndUserMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[sessionID]
	if !ok {
		return []contractx.EndUserMessage{}
	}
	return st.snapshot()
}

// Clear drops everything known about the session. Unknown sessions are ignored.
func (m *MemoryStore) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *MemoryStore) SetActiveAgent(sessionID string, agentType contractx.AgentType) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.getOrCreateLocked(sessionID)
	st.ActiveAgent = agentType
	st.UpdatedAt = m.now().UTC()
}

func (m *MemoryStore) ActiveAgent(sessionID string) (contractx.AgentType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[sessionID]
	if !ok || st.ActiveAgent == "" {
		return "", false
	}
	return st.ActiveAgent, true
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) getOrCreateLocked(sessionID string) *SessionState {
	st, ok := m.sessions[sessionID]
	if !ok {
		st = newSessionState(sessionID, m.capacity, m.now())
		m.sessions[sessionID] = st
	}
	return st
}
