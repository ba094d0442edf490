package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"
)

func newPending(t *testing.T, st *Store) models.AbsenceRequest {
	t.Helper()
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	request, err := st.CreateAbsence(context.Background(), store.CreateAbsenceInput{
		RequesterRef: "emp-1",
		ServiceRef:   "teaching",
		Type:         models.AbsenceSickLeave,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 5),
	})
	if err != nil {
		t.Fatalf("create absence: %v", err)
	}
	return request
}

func TestLoginAndSessionExpiry(t *testing.T) {
	st := NewStore(time.Hour)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	st.nowFunc = func() time.Time { return now }
	if err := st.PutUser(models.User{ID: "u-1", Username: "chef1", Role: models.RoleChiefTeaching}, "correct"); err != nil {
		t.Fatalf("put user: %v", err)
	}

	if _, err := st.Login(context.Background(), store.LoginInput{Username: "chef1", Password: "wrong"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := st.Login(context.Background(), store.LoginInput{Username: "nobody", Password: "correct"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	result, err := st.Login(context.Background(), store.LoginInput{Username: "chef1", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := st.GetSession(context.Background(), result.Session.Token); err != nil {
		t.Fatalf("get session: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := st.GetSession(context.Background(), result.Session.Token); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	st := NewStore(time.Hour)
	request := newPending(t, st)

	approved, err := st.TransitionAbsence(context.Background(), store.TransitionInput{
		ID: request.ID, Action: store.ActionApprove, From: models.StatusPending,
		ApproverRef: "chief-1", ApproverComment: "ok",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.StatusApproved || approved.ApproverRef != "chief-1" || approved.ResolvedAt == nil {
		t.Fatalf("unexpected approved record: %+v", approved)
	}

	_, err = st.TransitionAbsence(context.Background(), store.TransitionInput{
		ID: request.ID, Action: store.ActionReject, From: models.StatusPending,
		ApproverRef: "chief-2", RejectionReason: "late",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	stored, err := st.GetAbsence(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ApproverRef != "chief-1" || stored.RejectionReason != "" {
		t.Fatalf("terminal record was overwritten: %+v", stored)
	}

	if _, err := st.TransitionAbsence(context.Background(), store.TransitionInput{ID: "missing", Action: store.ActionApprove, From: models.StatusPending}); !errors.Is(err, store.ErrAbsenceNotFound) {
		t.Fatalf("expected ErrAbsenceNotFound, got %v", err)
	}
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	st := NewStore(time.Hour)
	request := newPending(t, st)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		action := store.ActionApprove
		if i%2 == 1 {
			action = store.ActionReject
		}
		wg.Add(1)
		go func(action string) {
			defer wg.Done()
			_, err := st.TransitionAbsence(context.Background(), store.TransitionInput{
				ID: request.ID, Action: action, From: models.StatusPending,
				ApproverRef: "chief", RejectionReason: "reason",
			})
			results <- err
		}(action)
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
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	st := NewStore(time.Hour)
	request := newPending(t, st)
	if _, err := st.TransitionAbsence(context.Background(), store.TransitionInput{
		ID: request.ID, Action: store.ActionCancel, From: models.StatusPending, ApproverRef: "emp-1",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	events, err := st.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(events) != 2 || events[0].Type != "absence.submitted" || events[1].Type != "absence.cancelled" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if err := st.MarkOutboxDelivered(context.Background(), events[0].EventID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := st.MarkOutboxFailed(context.Background(), events[1].EventID, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	events, _ = st.ListPendingOutbox(context.Background(), 10)
	if len(events) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(events))
	}
	if len(st.outbox) != 0 {
		t.Fatalf("resolved events should be dropped, %d retained", len(st.outbox))
	}
}

func TestOutboxRetryKeepsEntry(t *testing.T) {
	st := NewStore(time.Hour)
	newPending(t, st)
	events, _ := st.ListPendingOutbox(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}

	if err := st.MarkOutboxFailed(context.Background(), events[0].EventID, "timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	events, _ = st.ListPendingOutbox(context.Background(), 10)
	if len(events) != 1 || events[0].Attempts != 1 {
		t.Fatalf("expected retryable event with one attempt, got %+v", events)
	}
	if err := st.MarkOutboxDelivered(context.Background(), "unknown-event"); err != nil {
		t.Fatalf("unknown event: %v", err)
	}
	if len(st.outbox) != 1 {
		t.Fatalf("expected entry to stay queued, got %d", len(st.outbox))
	}
}

func TestCreateUser(t *testing.T) {
	st := NewStore(time.Hour)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, models.User{Username: "Emp2", Role: models.RoleEmployee, ServiceRef: "finance"}, "emp2-pass")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	existing, err := st.CreateUser(ctx, models.User{Username: "emp2", Role: models.RoleAdminHR}, "other")
	if !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if existing.ID != created.ID || existing.Role != models.RoleEmployee {
		t.Fatalf("expected stored user back, got %+v", existing)
	}
	if _, err := st.Login(ctx, store.LoginInput{Username: "emp2", Password: "emp2-pass"}); err != nil {
		t.Fatalf("login with original password: %v", err)
	}

	users, err := st.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].Username != "Emp2" {
		t.Fatalf("unexpected users %+v err=%v", users, err)
	}
}
