package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const absenceColumns = `absence_id, requester_ref, service_ref, type, start_date, end_date, status,
		approver_ref, approver_comment, rejection_reason, requested_at, resolved_at`

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Store{pool: pool, sessionTTL: ttl}
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var role string
	var serviceRef sql.NullString
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, username, display_name, role, service_ref, password_hash
		FROM users
		WHERE lower(username) = lower($1) AND active = TRUE
	`, input.Username)
	if err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &role, &serviceRef, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	parsed, err := models.ParseRole(role)
	if err != nil {
		return store.LoginResult{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	user.ServiceRef = serviceRef.String

	now := time.Now().UTC()
	session := models.Session{
		Token:     uuid.NewString(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.Token, user.ID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return store.LoginResult{}, err
	}

	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	if !isValidUUID(token) {
		return models.Session{}, store.ErrSessionNotFound
	}

	var session models.Session
	var role string
	var serviceRef sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT s.token, s.created_at, s.expires_at,
		       u.user_id, u.username, u.display_name, u.role, u.service_ref
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.token = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, token)
	if err := row.Scan(&session.Token, &session.CreatedAt, &session.ExpiresAt,
		&session.User.ID, &session.User.Username, &session.User.DisplayName, &role, &serviceRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return models.Session{}, fmt.Errorf("user %s: %w", session.User.ID, err)
	}
	session.User.Role = parsed
	session.User.ServiceRef = serviceRef.String
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if !isValidUUID(token) {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// CreateUser inserts a user with a bcrypt hash of password. When the username
// is taken the stored user is returned with store.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, user models.User, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	var insertedID string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, username, display_name, role, service_ref, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((lower(username))) DO NOTHING
		RETURNING user_id
	`, user.ID, user.Username, user.DisplayName, string(user.Role), nullIfEmpty(user.ServiceRef), string(hash)).Scan(&insertedID)
	if err == nil {
		user.ID = insertedID
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, err
	}

	existing, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT user_id, username, display_name, role, service_ref
		FROM users
		WHERE lower(username) = lower($1)
	`, user.Username))
	if err != nil {
		return models.User{}, err
	}
	return existing, store.ErrUserExists
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, username, display_name, role, service_ref
		FROM users
		WHERE active = TRUE
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var role string
	var serviceRef sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &role, &serviceRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return models.User{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	user.ServiceRef = serviceRef.String
	return user, nil
}

func (s *Store) CreateAbsence(ctx context.Context, input store.CreateAbsenceInput) (models.AbsenceRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.AbsenceRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	requestedAt := input.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO absence_requests (absence_id, requester_ref, service_ref, type, start_date, end_date, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7)
		RETURNING `+absenceColumns,
		uuid.NewString(), input.RequesterRef, nullIfEmpty(input.ServiceRef), string(input.Type), input.StartDate, input.EndDate, requestedAt)
	request, err := scanAbsence(row)
	if err != nil {
		return models.AbsenceRequest{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "absence.submitted", request); err != nil {
		return models.AbsenceRequest{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.AbsenceRequest{}, err
	}
	return request, nil
}

func (s *Store) GetAbsence(ctx context.Context, id string) (models.AbsenceRequest, error) {
	if !isValidUUID(id) {
		return models.AbsenceRequest{}, store.ErrAbsenceNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+absenceColumns+` FROM absence_requests WHERE absence_id = $1`, id)
	request, err := scanAbsence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AbsenceRequest{}, store.ErrAbsenceNotFound
		}
		return models.AbsenceRequest{}, err
	}
	return request, nil
}

func (s *Store) ListAbsences(ctx context.Context, filter store.AbsenceFilter) ([]models.AbsenceRequest, error) {
	query := `SELECT ` + absenceColumns + ` FROM absence_requests WHERE 1=1`
	var args []interface{}
	if filter.RequesterRef != "" {
		args = append(args, filter.RequesterRef)
		query += fmt.Sprintf(" AND requester_ref = $%d", len(args))
	}
	if filter.ServiceRef != "" {
		args = append(args, filter.ServiceRef)
		query += fmt.Sprintf(" AND service_ref = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY requested_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.AbsenceRequest
	for rows.Next() {
		request, err := scanAbsence(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *Store) TransitionAbsence(ctx context.Context, input store.TransitionInput) (models.AbsenceRequest, error) {
	if !store.ValidTransition(input.Action, input.From) {
		return models.AbsenceRequest{}, store.ErrInvalidState
	}
	target, _ := store.TargetStatus(input.Action)
	if !isValidUUID(input.ID) {
		return models.AbsenceRequest{}, store.ErrAbsenceNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.AbsenceRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		UPDATE absence_requests
		SET status = $1, approver_ref = $2, approver_comment = $3, rejection_reason = $4, resolved_at = $5
		WHERE absence_id = $6 AND status = $7
		RETURNING `+absenceColumns,
		string(target), nullIfEmpty(input.ApproverRef), nullIfEmpty(input.ApproverComment), nullIfEmpty(input.RejectionReason),
		occurredAt, input.ID, string(input.From))
	request, err := scanAbsence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, lookupErr := absenceExists(ctx, tx, input.ID)
			if lookupErr != nil {
				err = lookupErr
				return models.AbsenceRequest{}, err
			}
			if !exists {
				return models.AbsenceRequest{}, store.ErrAbsenceNotFound
			}
			return models.AbsenceRequest{}, store.ErrInvalidState
		}
		return models.AbsenceRequest{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventType(input.Action), request); err != nil {
		return models.AbsenceRequest{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.AbsenceRequest{}, err
	}
	return request, nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload, attempts, created_at
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.Type, &payload, &event.Attempts, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'delivered', delivered_at = NOW(), attempts = attempts + 1
		WHERE event_id = $1
	`, eventID)
	return err
}

func (s *Store) MarkOutboxFailed(ctx context.Context, eventID, lastError string, giveUp bool) error {
	status := "pending"
	if giveUp {
		status = "failed"
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, last_error = $3, attempts = attempts + 1
		WHERE event_id = $1
	`, eventID, status, lastError)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, request models.AbsenceRequest) error {
	payload, err := store.EventPayload(request)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload)
		VALUES ($1, $2, $3)
	`, uuid.NewString(), eventType, payload)
	return err
}

func absenceExists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM absence_requests WHERE absence_id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanAbsence(row pgx.Row) (models.AbsenceRequest, error) {
	var request models.AbsenceRequest
	var absenceType, status string
	var serviceRef, approverRef, approverComment, rejectionReason sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&request.ID, &request.RequesterRef, &serviceRef, &absenceType, &request.StartDate, &request.EndDate, &status,
		&approverRef, &approverComment, &rejectionReason, &request.RequestedAt, &resolvedAt); err != nil {
		return models.AbsenceRequest{}, err
	}
	request.Type = models.AbsenceType(absenceType)
	request.Status = models.AbsenceStatus(status)
	request.ServiceRef = serviceRef.String
	request.ApproverRef = approverRef.String
	request.ApproverComment = approverComment.String
	request.RejectionReason = rejectionReason.String
	request.ResolvedAt = nullTimePtr(resolvedAt)
	return request, nil
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
