package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"
	"ministry-hr/internal/store/memory"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

func TestRenderTemplate(t *testing.T) {
	payload := payloadData{
		"id":               "abs-1",
		"type":             "SICK_LEAVE",
		"start_date":       "2024-03-05T00:00:00Z",
		"end_date":         "2024-03-10T00:00:00Z",
		"approver_ref":     "chief-1",
		"rejection_reason": "staffing",
	}
	got := renderTemplate(templateForEvent("absence.rejected"), payload)
	want := "Absence request abs-1 (SICK_LEAVE, 2024-03-05 to 2024-03-10) rejected by chief-1: staffing"
	if got != want {
		t.Fatalf("unexpected template render: %s", got)
	}
}

type recordingProvider struct {
	mu       sync.Mutex
	err      error
	messages []string
}

func (p *recordingProvider) Send(ctx context.Context, message, recipient string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, recipient+": "+message)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedApproved(t *testing.T, st *memory.Store) {
	t.Helper()
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	request, err := st.CreateAbsence(context.Background(), store.CreateAbsenceInput{
		RequesterRef: "emp-1", ServiceRef: "teaching", Type: models.AbsenceSickLeave,
		StartDate: start, EndDate: start.AddDate(0, 0, 5),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.TransitionAbsence(context.Background(), store.TransitionInput{
		ID: request.ID, Action: store.ActionApprove, From: models.StatusPending,
		ApproverRef: "chief-1", ApproverComment: "get well",
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestWorkerDeliversEvents(t *testing.T) {
	st := memory.NewStore(time.Hour)
	seedApproved(t, st)
	provider := &recordingProvider{}
	w := New(st, provider, Config{Recipient: "hr-chat", Logger: quietLogger()})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.messages) != 2 {
		t.Fatalf("expected 2 notifications, got %v", provider.messages)
	}
	if !strings.Contains(provider.messages[1], "approved by chief-1. get well") {
		t.Fatalf("unexpected message: %s", provider.messages[1])
	}
	pending, _ := st.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d", len(pending))
	}
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	st := memory.NewStore(time.Hour)
	seedApproved(t, st)
	provider := &recordingProvider{err: errors.New("provider down")}
	w := New(st, provider, Config{MaxAttempts: 2, Logger: quietLogger()})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	pending, _ := st.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 2 || pending[0].Attempts != 1 {
		t.Fatalf("expected events to stay pending after one failure: %+v", pending)
	}

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	pending, _ = st.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected events to be given up, got %d pending", len(pending))
	}
}

func TestWebhookProvider(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	provider, err := NewProvider(ProviderConfig{Kind: "webhook", WebhookURL: srv.URL, WebhookToken: "secret"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := provider.Send(context.Background(), "hello", "hr"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["message"] != "hello" || got["recipient"] != "hr" {
		t.Fatalf("unexpected webhook body: %v", got)
	}

	rejecting, _ := NewProvider(ProviderConfig{Kind: "webhook", WebhookURL: srv.URL})
	if err := rejecting.Send(context.Background(), "hello", "hr"); err == nil {
		t.Fatalf("expected error for rejected webhook")
	}
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{}, nil
}

func TestTelegramProvider(t *testing.T) {
	bot := &fakeBot{}
	provider := telegramProvider{bot: bot}

	if err := provider.Send(context.Background(), "approved", "-100123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != -100123 || bot.sent[0].Text != "approved" {
		t.Fatalf("unexpected messages: %+v", bot.sent)
	}
	if err := provider.Send(context.Background(), "approved", "hr-team"); err == nil {
		t.Fatalf("expected error for non numeric chat id")
	}
}

func TestNewProviderTelegramRequiresToken(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{Kind: "telegram"}); err == nil {
		t.Fatalf("expected error without token")
	}
	provider, err := NewProvider(ProviderConfig{Kind: "unknown", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, ok := provider.(logProvider); !ok {
		t.Fatalf("expected log provider fallback, got %T", provider)
	}
}
