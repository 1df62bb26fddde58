package relay

import (
	"sync"
	"time"
)

// StateKind names an admin's position in the conversation state machine.
type StateKind int

const (
	StateIdle StateKind = iota
	StateAwaitingReply
	StateAwaitingBroadcastText
	StateAwaitingBroadcastConfirm
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateAwaitingBroadcastText:
		return "awaiting_broadcast_text"
	case StateAwaitingBroadcastConfirm:
		return "awaiting_broadcast_confirm"
	default:
		return "unknown"
	}
}

// State is one admin's pending conversation context. TargetUser is set while
// a reply is pending; Body while a broadcast awaits confirmation.
type State struct {
	Kind       StateKind
	TargetUser int64
	Body       string
	EnteredAt  time.Time
}

// StateStore holds per-admin conversation state in memory. State is
// deliberately volatile: a restart drops every pending flow back to idle.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewStateStore() *StateStore {
	return &StateStore{states: map[int64]State{}}
}

// Get returns the current state, idle when none is recorded.
func (s *StateStore) Get(adminID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[adminID]
}

// Set replaces the admin's state wholesale (last writer wins) and stamps
// EnteredAt when the caller left it zero.
func (s *StateStore) Set(adminID int64, st State) {
	if st.EnteredAt.IsZero() {
		st.EnteredAt = time.Now()
	}
	s.mu.Lock()
	s.states[adminID] = st
	s.mu.Unlock()
}

// Clear returns the admin to idle.
func (s *StateStore) Clear(adminID int64) {
	s.mu.Lock()
	delete(s.states, adminID)
	s.mu.Unlock()
}

// SweepIdle clears non-idle states older than maxAge and reports which
// admins were reset. A maxAge of zero disables sweeping.
func (s *StateStore) SweepIdle(now time.Time, maxAge time.Duration) []int64 {
	if maxAge <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []int64
	for id, st := range s.states {
		if st.Kind != StateIdle && now.Sub(st.EnteredAt) > maxAge {
			delete(s.states, id)
			expired = append(expired, id)
		}
	}
	return expired
}
