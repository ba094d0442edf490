package session

import (
	"errors"
	"testing"

	"ministry-hr/internal/models"
)

func TestReduce(t *testing.T) {
	session := &models.Session{Token: "t", User: models.User{ID: "u", Role: models.RoleEmployee}}
	authenticated := State{Phase: models.PhaseAuthenticated, Session: session}
	failure := errors.New("boom")

	tests := []struct {
		name   string
		state  State
		action Action
		want   models.SessionPhase
		hasSes bool
	}{
		{name: "restore start", state: InitialState(), action: RestoreStart{}, want: models.PhaseRestoring},
		{name: "restore start twice", state: State{Phase: models.PhaseAnonymous}, action: RestoreStart{}, want: models.PhaseAnonymous},
		{name: "restore found user", state: State{Phase: models.PhaseRestoring}, action: SetUser{Session: session}, want: models.PhaseAuthenticated, hasSes: true},
		{name: "restore found nothing", state: State{Phase: models.PhaseRestoring}, action: SetUser{}, want: models.PhaseAnonymous},
		{name: "late set user ignored", state: authenticated, action: SetUser{}, want: models.PhaseAuthenticated, hasSes: true},
		{name: "login start keeps phase", state: State{Phase: models.PhaseAnonymous}, action: LoginStart{}, want: models.PhaseAnonymous},
		{name: "login success", state: State{Phase: models.PhaseAnonymous}, action: LoginSuccess{Session: *session}, want: models.PhaseAuthenticated, hasSes: true},
		{name: "login failure keeps session", state: authenticated, action: LoginFailure{Err: failure}, want: models.PhaseAuthenticated, hasSes: true},
		{name: "logout", state: authenticated, action: Logout{}, want: models.PhaseAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(tt.state, tt.action)
			if got.Phase != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Phase)
			}
			if (got.Session != nil) != tt.hasSes {
				t.Fatalf("unexpected session presence: %+v", got.Session)
			}
		})
	}
}

func TestReduceLoginFlags(t *testing.T) {
	failure := errors.New("boom")
	state := Reduce(State{Phase: models.PhaseAnonymous}, LoginStart{})
	if !state.LoginPending {
		t.Fatalf("expected pending flag")
	}
	state = Reduce(state, LoginFailure{Err: failure})
	if state.LoginPending || !errors.Is(state.Err, failure) {
		t.Fatalf("unexpected state after failure: %+v", state)
	}
	state = Reduce(state, LoginStart{})
	if state.Err != nil {
		t.Fatalf("login start should clear the previous error")
	}
}

func TestReduceDoesNotAliasSession(t *testing.T) {
	session := models.Session{Token: "t"}
	state := Reduce(State{Phase: models.PhaseRestoring}, SetUser{Session: &session})
	session.Token = "changed"
	if state.Session.Token != "t" {
		t.Fatalf("state shares memory with the action payload")
	}
}
