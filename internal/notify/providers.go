package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type Provider interface {
	Send(ctx context.Context, message, recipient string) error
}

type ProviderConfig struct {
	Kind          string
	WebhookURL    string
	WebhookToken  string
	TelegramToken string
	Logger        logrus.FieldLogger
}

// NewProvider builds the provider named by cfg.Kind. An unknown or
// unconfigured kind falls back to logging.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch strings.ToLower(cfg.Kind) {
	case "noop":
		return noopProvider{}, nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{logger: logger}, nil
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}, nil
	case "telegram":
		if cfg.TelegramToken == "" {
			return nil, errors.New("telegram provider requires NOTIFY_TELEGRAM_TOKEN")
		}
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		return telegramProvider{bot: bot}, nil
	default:
		return logProvider{logger: logger}, nil
	}
}

type logProvider struct {
	logger logrus.FieldLogger
}

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	p.logger.WithField("recipient", recipient).Info(message)
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	body, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode)
	}
	return nil
}

// telegramSender is the part of *tgbotapi.BotAPI the provider needs.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramProvider struct {
	bot telegramSender
}

// Send posts message to the chat whose numeric id is recipient.
func (p telegramProvider) Send(ctx context.Context, message, recipient string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient %q is not a chat id", recipient)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = p.bot.Send(tgbotapi.NewMessage(chatID, message))
	return err
}
