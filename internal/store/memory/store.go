package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user         models.User
	passwordHash []byte
}

// outboxEntry is pending until delivered or given up, at which point it is
// removed from the queue.
type outboxEntry struct {
	event     store.OutboxEvent
	lastError string
}

// Store keeps users, sessions, absence requests and outbox events in memory.
// It backs the service when no database is configured.
type Store struct {
	sessionTTL time.Duration
	nowFunc    func() time.Time

	mu       sync.Mutex
	accounts map[string]account
	sessions map[string]models.Session
	absences map[string]models.AbsenceRequest
	outbox   []*outboxEntry
}

func NewStore(sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 8 * time.Hour
	}
	return &Store{
		sessionTTL: sessionTTL,
		nowFunc:    time.Now,
		accounts:   make(map[string]account),
		sessions:   make(map[string]models.Session),
		absences:   make(map[string]models.AbsenceRequest),
	}
}

// PutUser registers or replaces a user with a bcrypt hash of password.
func (s *Store) PutUser(user models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user.Username)] = account{user: user, passwordHash: hash}
	return nil
}

// CreateUser adds a user unless the username is taken, in which case the
// existing user is returned with store.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, user models.User, password string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	key := strings.ToLower(user.Username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[key]; ok {
		return existing.user, store.ErrUserExists
	}
	s.accounts[key] = account{user: user, passwordHash: hash}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.accounts))
	for _, acc := range s.accounts {
		users = append(users, acc.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return store.LoginResult{}, err
	}
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(input.Username)]
	s.mu.Unlock()
	if !ok {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	now := s.nowFunc().UTC()
	session := models.Session{
		Token:     uuid.NewString(),
		User:      acc.user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return store.LoginResult{User: acc.user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return models.Session{}, store.ErrSessionNotFound
	}
	if !s.nowFunc().Before(session.ExpiresAt) {
		delete(s.sessions, token)
		return models.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) CreateAbsence(ctx context.Context, input store.CreateAbsenceInput) (models.AbsenceRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.AbsenceRequest{}, err
	}
	requestedAt := input.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = s.nowFunc().UTC()
	}
	request := models.AbsenceRequest{
		ID:           uuid.NewString(),
		RequesterRef: input.RequesterRef,
		ServiceRef:   input.ServiceRef,
		Type:         input.Type,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Status:       models.StatusPending,
		RequestedAt:  requestedAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences[request.ID] = request
	s.appendEventLocked("absence.submitted", request, requestedAt)
	return request, nil
}

func (s *Store) GetAbsence(ctx context.Context, id string) (models.AbsenceRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.AbsenceRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.absences[id]
	if !ok {
		return models.AbsenceRequest{}, store.ErrAbsenceNotFound
	}
	return request, nil
}

func (s *Store) ListAbsences(ctx context.Context, filter store.AbsenceFilter) ([]models.AbsenceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]models.AbsenceRequest, 0, len(s.absences))
	for _, request := range s.absences {
		if filter.RequesterRef != "" && request.RequesterRef != filter.RequesterRef {
			continue
		}
		if filter.ServiceRef != "" && request.ServiceRef != filter.ServiceRef {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		out = append(out, request)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (s *Store) TransitionAbsence(ctx context.Context, input store.TransitionInput) (models.AbsenceRequest, error) {
	if !store.ValidTransition(input.Action, input.From) {
		return models.AbsenceRequest{}, store.ErrInvalidState
	}
	target, _ := store.TargetStatus(input.Action)
	if err := ctx.Err(); err != nil {
		return models.AbsenceRequest{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.nowFunc().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.absences[input.ID]
	if !ok {
		return models.AbsenceRequest{}, store.ErrAbsenceNotFound
	}
	if request.Status != input.From {
		return models.AbsenceRequest{}, store.ErrInvalidState
	}

	request.Status = target
	request.ApproverRef = input.ApproverRef
	request.ApproverComment = input.ApproverComment
	request.RejectionReason = input.RejectionReason
	request.ResolvedAt = &occurredAt
	s.absences[request.ID] = request
	s.appendEventLocked(store.EventType(input.Action), request, occurredAt)
	return request, nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboxEvent
	for _, entry := range s.outbox {
		out = append(out, entry.event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.outboxIndexLocked(eventID); i >= 0 {
		s.removeOutboxLocked(i)
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, eventID, lastError string, giveUp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.outboxIndexLocked(eventID)
	if i < 0 {
		return nil
	}
	if giveUp {
		s.removeOutboxLocked(i)
		return nil
	}
	s.outbox[i].event.Attempts++
	s.outbox[i].lastError = lastError
	return nil
}

func (s *Store) outboxIndexLocked(eventID string) int {
	for i, entry := range s.outbox {
		if entry.event.EventID == eventID {
			return i
		}
	}
	return -1
}

func (s *Store) removeOutboxLocked(i int) {
	copy(s.outbox[i:], s.outbox[i+1:])
	s.outbox[len(s.outbox)-1] = nil
	s.outbox = s.outbox[:len(s.outbox)-1]
}

func (s *Store) appendEventLocked(eventType string, request models.AbsenceRequest, at time.Time) {
	payload, err := store.EventPayload(request)
	if err != nil {
		return
	}
	s.outbox = append(s.outbox, &outboxEntry{event: store.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: at,
	}})
}
