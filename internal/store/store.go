package store

import (
	"context"
	"encoding/json"
	"time"

	"ministry-hr/internal/models"
)

type LoginInput struct {
	Username string
	Password string
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

type AuthStore interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// UserStore provisions accounts. CreateUser returns the stored user; when the
// username is taken it returns the existing user together with ErrUserExists.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User, password string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

type CreateAbsenceInput struct {
	RequesterRef string
	ServiceRef   string
	Type         models.AbsenceType
	StartDate    time.Time
	EndDate      time.Time
	RequestedAt  time.Time
}

type AbsenceFilter struct {
	RequesterRef string
	ServiceRef   string
	Status       models.AbsenceStatus
}

// TransitionInput describes a compare-and-swap on an absence request:
// the write only lands if the stored status still equals From.
type TransitionInput struct {
	ID              string
	Action          string
	From            models.AbsenceStatus
	ApproverRef     string
	ApproverComment string
	RejectionReason string
	OccurredAt      time.Time
}

type AbsenceStore interface {
	CreateAbsence(ctx context.Context, input CreateAbsenceInput) (models.AbsenceRequest, error)
	GetAbsence(ctx context.Context, id string) (models.AbsenceRequest, error)
	ListAbsences(ctx context.Context, filter AbsenceFilter) ([]models.AbsenceRequest, error)
	TransitionAbsence(ctx context.Context, input TransitionInput) (models.AbsenceRequest, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxStore interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxDelivered(ctx context.Context, eventID string) error
	MarkOutboxFailed(ctx context.Context, eventID, lastError string, giveUp bool) error
}

type Store interface {
	AuthStore
	UserStore
	AbsenceStore
	OutboxStore
}

// EventPayload is the outbox body written alongside every absence change.
func EventPayload(request models.AbsenceRequest) ([]byte, error) {
	return json.Marshal(request)
}
