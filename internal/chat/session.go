// Package chat is the conversation router. It decides, per message, whether
// to answer from a template, a knowledge-pack document, a trusted web source
// or open-ended supportive chat.
package chat

import (
	"sync"
	"time"

	"github.com/ashureev/carenav/internal/domain"
)

// State is the router state of one session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingConsent State = "awaiting_search_consent"
	StatePickingResult   State = "picking_result"
)

// Route names the strategy that produced a reply.
type Route string

const (
	RouteScripted  Route = "scripted"
	RouteCrisis    Route = "crisis"
	RouteKnowledge Route = "knowledge"
	RouteConsent   Route = "consent"
	RouteSearch    Route = "search"
	RouteSummary   Route = "summary"
	RouteChat      Route = "chat"
)

// Reply is the router's answer to one message.
type Reply struct {
	Text       string                   `json:"reply"`
	State      State                    `json:"state"`
	Intent     domain.Intent            `json:"intent,omitempty"`
	Route      Route                    `json:"route"`
	Candidates []domain.SearchCandidate `json:"candidates,omitempty"`
	Bullets    []string                 `json:"bullets,omitempty"`
	SourceURL  string                   `json:"sourceUrl,omitempty"`
}

// Session is the per-conversation context. All fields are owned by the
// router and mutated only while mu is held for a turn.
type Session struct {
	ID string

	mu            sync.Mutex
	history       *domain.History
	consent       domain.ConsentState
	state         State
	candidates    []domain.SearchCandidate
	cursor        int
	query         string
	lastDoc       *domain.TopicDocument
	turn          int
	lastGreetTurn int
}

// NewSession creates an idle session with a rolling history of historyWindow
// messages.
func NewSession(id string, historyWindow int) *Session {
	return &Session{
		ID:      id,
		history: domain.NewHistory(historyWindow),
		state:   StateIdle,
	}
}

// Snapshot is a read-only view of a session for diagnostics.
type Snapshot struct {
	ID             string           `json:"id"`
	State          State            `json:"state"`
	Turn           int              `json:"turn"`
	ConsentGranted bool             `json:"consentGranted"`
	PendingQuery   string           `json:"pendingQuery,omitempty"`
	History        []domain.Message `json:"history"`
}

// Snapshot returns the current session state. It waits for any turn in
// progress.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:             s.ID,
		State:          s.state,
		Turn:           s.turn,
		ConsentGranted: s.consent.Granted,
		History:        s.history.Recent(),
	}
	if s.consent.Pending != nil {
		snap.PendingQuery = s.consent.Pending.Content
	}
	return snap
}

func (s *Session) toIdle() {
	s.state = StateIdle
	s.candidates = nil
	s.cursor = 0
	s.query = ""
}

// Manager holds sessions by key and evicts idle ones.
type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*managedSession
	historyWindow int
	ttl           time.Duration
}

type managedSession struct {
	session  *Session
	lastSeen time.Time
}

// NewManager creates a manager. Sessions unused for ttl are evicted by Sweep.
func NewManager(historyWindow int, ttl time.Duration) *Manager {
	return &Manager{
		sessions:      make(map[string]*managedSession),
		historyWindow: historyWindow,
		ttl:           ttl,
	}
}

// Get returns the session for key, creating it if needed.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[key]
	if !ok {
		ms = &managedSession{session: NewSession(key, m.historyWindow)}
		m.sessions[key] = ms
	}
	ms.lastSeen = time.Now()
	return ms.session
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions last used before now minus the TTL and returns how
// many were removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, ms := range m.sessions {
		if ms.lastSeen.Before(cutoff) {
			delete(m.sessions, key)
			n++
		}
	}
	return n
}
