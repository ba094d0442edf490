package session

import "ministry-hr/internal/models"

// State is the full client session snapshot. Session is nil unless Phase is
// AUTHENTICATED.
type State struct {
	Phase        models.SessionPhase
	Session      *models.Session
	LoginPending bool
	Err          error
}

func (s State) SessionState() models.SessionState {
	return models.SessionState{Phase: s.Phase, Session: s.Session}
}

func InitialState() State {
	return State{Phase: models.PhaseUninitialized}
}

// Action is one of RestoreStart, SetUser, LoginStart, LoginSuccess,
// LoginFailure or Logout.
type Action interface {
	isAction()
}

type RestoreStart struct{}

// SetUser resolves a restore. A nil Session means no usable token was found.
type SetUser struct {
	Session *models.Session
}

type LoginStart struct{}

type LoginSuccess struct {
	Session models.Session
}

type LoginFailure struct {
	Err error
}

type Logout struct{}

func (RestoreStart) isAction() {}
func (SetUser) isAction()      {}
func (LoginStart) isAction()   {}
func (LoginSuccess) isAction() {}
func (LoginFailure) isAction() {}
func (Logout) isAction()       {}

// Reduce returns the state that follows state after action. It never
// modifies its input.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case RestoreStart:
		if state.Phase != models.PhaseUninitialized {
			return state
		}
		return State{Phase: models.PhaseRestoring}
	case SetUser:
		if state.Phase != models.PhaseUninitialized && state.Phase != models.PhaseRestoring {
			return state
		}
		if a.Session == nil {
			return State{Phase: models.PhaseAnonymous}
		}
		session := *a.Session
		return State{Phase: models.PhaseAuthenticated, Session: &session}
	case LoginStart:
		next := state
		next.LoginPending = true
		next.Err = nil
		return next
	case LoginSuccess:
		session := a.Session
		return State{Phase: models.PhaseAuthenticated, Session: &session}
	case LoginFailure:
		next := state
		next.LoginPending = false
		next.Err = a.Err
		return next
	case Logout:
		return State{Phase: models.PhaseAnonymous}
	default:
		return state
	}
}
