package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ministry-hr/internal/store"

	"github.com/sirupsen/logrus"
)

type payloadData map[string]interface{}

type Config struct {
	BatchSize   int
	MaxAttempts int
	// Recipient is where decisions are announced: a chat id for Telegram,
	// an address for webhooks.
	Recipient string
	Logger    logrus.FieldLogger
}

// Worker drains the absence outbox and announces each event through a provider.
type Worker struct {
	store       store.OutboxStore
	provider    Provider
	batchSize   int
	maxAttempts int
	recipient   string
	logger      logrus.FieldLogger
}

func New(st store.OutboxStore, provider Provider, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		store:       st,
		provider:    provider,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		recipient:   cfg.Recipient,
		logger:      logger.WithField("component", "notify"),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	events, err := w.store.ListPendingOutbox(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			w.logger.WithError(err).WithField("event_id", event.EventID).Warn("notify process error")
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	template := templateForEvent(event.Type)
	if template == "" {
		return w.store.MarkOutboxDelivered(ctx, event.EventID)
	}

	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return w.store.MarkOutboxFailed(ctx, event.EventID, "invalid payload: "+err.Error(), true)
	}
	message := renderTemplate(template, payload)

	if sendErr := w.provider.Send(ctx, message, w.recipient); sendErr != nil {
		giveUp := event.Attempts+1 >= w.maxAttempts
		w.logger.WithError(sendErr).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  event.Attempts + 1,
			"give_up":  giveUp,
		}).Warn("notification send failed")
		return w.store.MarkOutboxFailed(ctx, event.EventID, sendErr.Error(), giveUp)
	}
	return w.store.MarkOutboxDelivered(ctx, event.EventID)
}

func templateForEvent(eventType string) string {
	switch eventType {
	case "absence.submitted":
		return "New {type} request {id} from {requester_ref}, {start_date} to {end_date}."
	case "absence.approved":
		return "Absence request {id} ({type}, {start_date} to {end_date}) approved by {approver_ref}. {approver_comment}"
	case "absence.rejected":
		return "Absence request {id} ({type}, {start_date} to {end_date}) rejected by {approver_ref}: {rejection_reason}"
	case "absence.cancelled":
		return "Absence request {id} ({type}, {start_date} to {end_date}) cancelled by {approver_ref}."
	default:
		return ""
	}
}

var templateKeys = []string{
	"id", "type", "requester_ref", "service_ref", "start_date", "end_date",
	"approver_ref", "approver_comment", "rejection_reason",
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	for _, key := range templateKeys {
		placeholder := "{" + key + "}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		value := str(payload, key)
		if key == "start_date" || key == "end_date" {
			value = dateOnly(value)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return strings.TrimSpace(result)
}

func str(payload payloadData, key string) string {
	if text, ok := payload[key].(string); ok {
		return text
	}
	return ""
}

func dateOnly(value string) string {
	if len(value) >= len("2006-01-02") {
		return value[:len("2006-01-02")]
	}
	return value
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.logger.WithError(err).Error("notify worker error")
			}
		}
	}
}
