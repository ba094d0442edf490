package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestLoginAndGetSession(t *testing.T) {
	ctx := context.Background()
	st, _ := setupTestStore(t, ctx)

	created, err := st.CreateUser(ctx, models.User{
		Username:    "chef.teaching",
		DisplayName: "Chief Teaching",
		Role:        models.RoleChiefTeaching,
		ServiceRef:  "teaching",
	}, "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := st.Login(ctx, store.LoginInput{Username: "chef.teaching", Password: "nope"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	result, err := st.Login(ctx, store.LoginInput{Username: "Chef.Teaching", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.ID != created.ID || result.User.Role != models.RoleChiefTeaching {
		t.Fatalf("unexpected user: %+v", result.User)
	}

	session, err := st.GetSession(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.User.ServiceRef != "teaching" {
		t.Fatalf("expected service ref teaching, got %q", session.User.ServiceRef)
	}

	if err := st.DeleteSession(ctx, result.Session.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetSession(ctx, result.Session.Token); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := st.GetSession(ctx, "not-a-token"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed token, got %v", err)
	}
}

func TestCreateUserExistingUsernameReturnsStoredUser(t *testing.T) {
	ctx := context.Background()
	st, _ := setupTestStore(t, ctx)

	first, err := st.CreateUser(ctx, models.User{Username: "emp.one", Role: models.RoleEmployee, ServiceRef: "exams"}, "first-pass")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	again, err := st.CreateUser(ctx, models.User{Username: "EMP.ONE", Role: models.RoleAdminHR}, "second-pass")
	if !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if again.ID != first.ID || again.Role != models.RoleEmployee || again.ServiceRef != "exams" {
		t.Fatalf("expected the stored user back, got %+v (first %+v)", again, first)
	}
	if _, err := st.Login(ctx, store.LoginInput{Username: "emp.one", Password: "second-pass"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("conflicting create must not replace the password, got %v", err)
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].ID != first.ID {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	st, pool := setupTestStore(t, ctx)

	request := createAbsence(t, ctx, st)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	inputs := []store.TransitionInput{
		{ID: request.ID, Action: store.ActionApprove, From: models.StatusPending, ApproverRef: "chief-a"},
		{ID: request.ID, Action: store.ActionReject, From: models.StatusPending, ApproverRef: "chief-b", RejectionReason: "staffing"},
	}
	for _, input := range inputs {
		wg.Add(1)
		go func(in store.TransitionInput) {
			defer wg.Done()
			_, err := st.TransitionAbsence(ctx, in)
			results <- err
		}(input)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrInvalidState):
		default:
			t.Fatalf("transition error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	var count int
	row := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM outbox_events WHERE type IN ('absence.approved', 'absence.rejected')
	`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 decision event, got %d", count)
	}
}

func TestTransitionMissingAbsence(t *testing.T) {
	ctx := context.Background()
	st, _ := setupTestStore(t, ctx)

	_, err := st.TransitionAbsence(ctx, store.TransitionInput{
		ID: uuid.NewString(), Action: store.ActionApprove, From: models.StatusPending, ApproverRef: "hr",
	})
	if !errors.Is(err, store.ErrAbsenceNotFound) {
		t.Fatalf("expected ErrAbsenceNotFound, got %v", err)
	}
}

func TestRejectWithoutReasonViolatesConstraint(t *testing.T) {
	ctx := context.Background()
	st, _ := setupTestStore(t, ctx)

	request := createAbsence(t, ctx, st)
	_, err := st.TransitionAbsence(ctx, store.TransitionInput{
		ID: request.ID, Action: store.ActionReject, From: models.StatusPending, ApproverRef: "hr",
	})
	if err == nil {
		t.Fatalf("expected check constraint violation")
	}

	stored, err := st.GetAbsence(ctx, request.ID)
	if err != nil {
		t.Fatalf("get absence: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Fatalf("expected PENDING after failed reject, got %s", stored.Status)
	}
}

func TestListAbsencesAndOutbox(t *testing.T) {
	ctx := context.Background()
	st, _ := setupTestStore(t, ctx)

	first := createAbsence(t, ctx, st)
	second := createAbsence(t, ctx, st)
	if _, err := st.TransitionAbsence(ctx, store.TransitionInput{
		ID: second.ID, Action: store.ActionCancel, From: models.StatusPending, ApproverRef: second.RequesterRef,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pending, err := st.ListAbsences(ctx, store.AbsenceFilter{ServiceRef: "exams", Status: models.StatusPending})
	if err != nil {
		t.Fatalf("list absences: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	events, err := st.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 outbox events, got %d", len(events))
	}
	for _, event := range events {
		if err := st.MarkOutboxDelivered(ctx, event.EventID); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	events, err = st.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected drained outbox, got %d", len(events))
	}
}

func createAbsence(t *testing.T, ctx context.Context, st *Store) models.AbsenceRequest {
	t.Helper()
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	request, err := st.CreateAbsence(ctx, store.CreateAbsenceInput{
		RequesterRef: uuid.NewString(),
		ServiceRef:   "exams",
		Type:         models.AbsenceAnnualLeave,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 4),
	})
	if err != nil {
		t.Fatalf("create absence: %v", err)
	}
	if request.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", request.Status)
	}
	return request
}

// setupTestStore opens a store on a throwaway schema with the migrations
// applied. It skips unless TEST_DB_DSN (or DB_DSN) points at Postgres.
func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "hr_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execAdmin(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = execAdmin(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	migrations, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.sql"))
	if err != nil || len(migrations) == 0 {
		t.Fatalf("find migrations: %v", err)
	}
	sort.Strings(migrations)
	for _, path := range migrations {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			t.Fatalf("apply %s: %v", filepath.Base(path), err)
		}
	}

	return NewStore(pool, Options{SessionTTL: time.Hour}), pool
}

func execAdmin(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
