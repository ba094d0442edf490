package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ministry-hr/internal/authz"
	"ministry-hr/internal/models"

	"github.com/sirupsen/logrus"
)

// TokenKey is the key under which the session token is persisted.
const TokenKey = "session_token"

const defaultTimeout = 10 * time.Second

type Credentials struct {
	Username string
	Password string
}

// Verifier is the remote side of authentication.
type Verifier interface {
	Verify(ctx context.Context, credentials Credentials) (models.Session, error)
	Resume(ctx context.Context, token string) (models.Session, error)
	Revoke(ctx context.Context, token string) error
}

// KeyValue persists the session token between runs.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

type Service struct {
	verifier Verifier
	tokens   KeyValue
	store    *Store
	timeout  time.Duration
	logger   logrus.FieldLogger

	// writerMu admits one session writer at a time. Login fails fast when it
	// is held; RestoreSession and Logout wait on it.
	writerMu  sync.Mutex
	restoreMu sync.Mutex
}

func NewService(verifier Verifier, tokens KeyValue, options Options) *Service {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		verifier: verifier,
		tokens:   tokens,
		store:    NewStore(),
		timeout:  timeout,
		logger:   logger.WithField("component", "session"),
	}
}

// RestoreSession resolves the persisted token once. It never fails: a missing,
// invalid or unverifiable token leaves the session anonymous. Later calls
// return the already resolved session. A Login attempted while the restore is
// in flight fails with ErrLoginInProgress.
func (s *Service) RestoreSession(ctx context.Context) *models.Session {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if s.store.Snapshot().Phase != models.PhaseUninitialized {
		return s.store.Snapshot().Session
	}
	s.store.Dispatch(RestoreStart{})

	token, ok, err := s.tokens.Get(ctx, TokenKey)
	if err != nil {
		s.logger.WithError(err).Warn("read persisted session token")
	}
	if err != nil || !ok || strings.TrimSpace(token) == "" {
		return s.store.Dispatch(SetUser{}).Session
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.verifier.Resume(callCtx, token)
	if err != nil {
		err = normalizeVerifierError(err)
		if errors.Is(err, ErrNetwork) {
			s.logger.WithError(err).Warn("session restore deferred, continuing anonymously")
		} else {
			s.logger.WithError(err).Info("persisted session rejected")
			if delErr := s.tokens.Delete(ctx, TokenKey); delErr != nil {
				s.logger.WithError(delErr).Warn("clear persisted session token")
			}
		}
		return s.store.Dispatch(SetUser{}).Session
	}

	s.logger.WithField("user", session.User.Username).Info("session restored")
	return s.store.Dispatch(SetUser{Session: &session}).Session
}

// Login verifies credentials and, on success, replaces the current session.
// A failed login leaves the previous session untouched.
func (s *Service) Login(ctx context.Context, credentials Credentials) (models.User, error) {
	if !s.writerMu.TryLock() {
		return models.User{}, ErrLoginInProgress
	}
	defer s.writerMu.Unlock()

	s.store.Dispatch(LoginStart{})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.verifier.Verify(callCtx, credentials)
	if err != nil {
		err = normalizeVerifierError(err)
		if errors.Is(err, ErrSessionExpired) {
			err = ErrInvalidCredentials
		}
		s.store.Dispatch(LoginFailure{Err: err})
		s.logger.WithError(err).WithField("user", credentials.Username).Info("login failed")
		return models.User{}, err
	}

	if err := s.tokens.Put(ctx, TokenKey, session.Token); err != nil {
		s.logger.WithError(err).Warn("persist session token")
	}
	s.store.Dispatch(LoginSuccess{Session: session})
	s.logger.WithFields(logrus.Fields{"user": session.User.Username, "role": session.User.Role}).Info("login succeeded")
	return session.User, nil
}

// Logout clears the local session and the persisted token. It is safe to call
// repeatedly; revoking the token remotely is best effort.
func (s *Service) Logout(ctx context.Context) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var token string
	if current := s.store.Snapshot().Session; current != nil {
		token = current.Token
	}
	if token == "" {
		if persisted, ok, err := s.tokens.Get(ctx, TokenKey); err == nil && ok {
			token = persisted
		}
	}

	s.store.Dispatch(Logout{})
	if err := s.tokens.Delete(ctx, TokenKey); err != nil {
		s.logger.WithError(err).Warn("clear persisted session token")
	}
	if token == "" {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.verifier.Revoke(callCtx, token); err != nil {
		s.logger.WithError(err).Warn("revoke session token")
	}
}

func (s *Service) State() State {
	return s.store.Snapshot()
}

func (s *Service) SessionState() models.SessionState {
	return s.store.Snapshot().SessionState()
}

func (s *Service) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

func (s *Service) CurrentUser() (models.User, bool) {
	return s.SessionState().User()
}

// Token returns the bearer token of the current session, if any.
func (s *Service) Token() (string, bool) {
	current := s.store.Snapshot().Session
	if current == nil {
		return "", false
	}
	return current.Token, true
}

func (s *Service) Authorize(req authz.Requirement) authz.Outcome {
	return authz.Authorize(s.SessionState(), req)
}
