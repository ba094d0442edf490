package models

import "time"

type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionPhase string

const (
	PhaseUninitialized SessionPhase = "UNINITIALIZED"
	PhaseRestoring     SessionPhase = "RESTORING"
	PhaseAuthenticated SessionPhase = "AUTHENTICATED"
	PhaseAnonymous     SessionPhase = "ANONYMOUS"
)

// SessionState is the read-only view of "who is logged in" handed to the
// authorization gate. Session is nil unless Phase is PhaseAuthenticated.
type SessionState struct {
	Phase   SessionPhase
	Session *Session
}

// AuthenticatedState wraps a session resolved outside the client state machine,
// e.g. from a bearer token on the server.
func AuthenticatedState(session Session) SessionState {
	return SessionState{Phase: PhaseAuthenticated, Session: &session}
}

func AnonymousState() SessionState {
	return SessionState{Phase: PhaseAnonymous}
}

func (s SessionState) User() (User, bool) {
	if s.Phase != PhaseAuthenticated || s.Session == nil {
		return User{}, false
	}
	return s.Session.User, true
}
