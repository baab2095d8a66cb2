package session

import (
	"sync"
	"time"

	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services"
)

// Tracker maintains in-memory per-session conversation aggregates. Sessions
// live for the process lifetime; there is no persistence layer behind them.
type Tracker struct {
	historyCap int

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState wraps a session with its own mutex so concurrent exchanges in
// different sessions never contend.
type sessionState struct {
	mu      sync.Mutex
	session models.Session
}

// NewTracker creates a tracker whose sessions keep at most historyCap drift
// scores.
func NewTracker(historyCap int) *Tracker {
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Tracker{
		historyCap: historyCap,
		sessions:   make(map[string]*sessionState),
	}
}

// GetOrCreate returns the session with the given ID, creating it on first
// use. The returned snapshot is safe to retain.
func (t *Tracker) GetOrCreate(id string) models.Session {
	state := t.state(id)
	state.mu.Lock()
	defer state.mu.Unlock()
	return snapshot(state.session)
}

// RecordExchange folds one completed (or partial) exchange into the session:
// exactly one turn increment, token and cost accumulation, and the drift
// score appended to the bounded history. It returns a snapshot of the
// session after the update.
func (t *Tracker) RecordExchange(id string, usage models.Usage, drift *models.DriftMeasurement) models.Session {
	state := t.state(id)
	state.mu.Lock()
	defer state.mu.Unlock()

	s := &state.session
	s.TurnCount++
	s.LastActivity = time.Now().UTC()
	s.TotalInputTokens += usage.InputTokens
	s.TotalOutputTokens += usage.OutputTokens
	s.TotalTokens += usage.TotalTokens
	s.TotalCostUSD += usage.CostUSD

	if drift != nil {
		s.DriftHistory = append(s.DriftHistory, drift.Score)
		if len(s.DriftHistory) > t.historyCap {
			s.DriftHistory = s.DriftHistory[len(s.DriftHistory)-t.historyCap:]
		}
	}

	return snapshot(*s)
}

// Snapshot returns a copy of the session, or a not-found error when the ID
// is unknown.
func (t *Tracker) Snapshot(id string) (models.Session, error) {
	t.mu.RLock()
	state, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok {
		return models.Session{}, services.NewDomainError(services.ErrorTypeNotFound, "session not found", services.ErrSessionNotFound).
			WithDetail("session_id", id)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return snapshot(state.session), nil
}

// All returns snapshots of every known session, in no particular order.
func (t *Tracker) All() []models.Session {
	t.mu.RLock()
	states := make([]*sessionState, 0, len(t.sessions))
	for _, s := range t.sessions {
		states = append(states, s)
	}
	t.mu.RUnlock()

	out := make([]models.Session, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		out = append(out, snapshot(state.session))
		state.mu.Unlock()
	}
	return out
}

func (t *Tracker) state(id string) *sessionState {
	t.mu.RLock()
	s, ok := t.sessions[id]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.sessions[id]; ok {
		return s
	}
	now := time.Now().UTC()
	s = &sessionState{session: models.Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
	}}
	t.sessions[id] = s
	return s
}

// snapshot copies the session, including its drift history slice.
func snapshot(s models.Session) models.Session {
	if s.DriftHistory != nil {
		history := make([]float64, len(s.DriftHistory))
		copy(history, s.DriftHistory)
		s.DriftHistory = history
	}
	return s
}
