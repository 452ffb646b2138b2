package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gridalert/internal/config"
	"gridalert/internal/domain"

	tgbot "github.com/go-telegram/bot"
)

// Notice is one outbound operator notice about an alert state change.
// Params: alert identity, lifecycle action, and active count after the change.
// Returns: channel-agnostic payload rendered by each sender.
type Notice struct {
	Action      string    `json:"action"`
	AlertID     int64     `json:"alertId,omitempty"`
	SourceID    string    `json:"sourceId,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	Operator    string    `json:"operator,omitempty"`
	ActiveCount int       `json:"activeCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notice actions mirror the push channel event types.
const (
	ActionRaised       = "raised"
	ActionAcknowledged = "acknowledged"
)

// Text renders the notice as a short human-readable line.
// Params: none.
// Returns: single-line notice text for chat channels.
func (n Notice) Text() string {
	switch n.Action {
	case ActionRaised:
		return fmt.Sprintf("alert raised: %s/%s %q (active: %d)", n.SourceID, n.Kind, n.Message, n.ActiveCount)
	case ActionAcknowledged:
		if n.AlertID > 0 {
			return fmt.Sprintf("alert %d acknowledged by %s (active: %d)", n.AlertID, n.Operator, n.ActiveCount)
		}
		return fmt.Sprintf("all alerts acknowledged by %s (active: %d)", n.Operator, n.ActiveCount)
	default:
		return fmt.Sprintf("alert update: %s (active: %d)", n.Action, n.ActiveCount)
	}
}

// ChannelSender sends one notice to one channel.
// Params: context and notice payload.
// Returns: transport error when the send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notice Notice) error
}

// Dispatcher delivers notices to every configured channel with the shared
// retry policy. Delivery is best effort: failures are logged and never
// propagate into the alert lifecycle.
// Params: sender list, retry policy, and logger.
// Returns: notice fan-out for the manager layer.
type Dispatcher struct {
	senders []ChannelSender
	retry   config.RetryConfig
	logger  *slog.Logger
}

// NewDispatcher builds the dispatcher from enabled channels.
// Params: notify config snapshot and logger.
// Returns: configured dispatcher, possibly with zero senders.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	var senders []ChannelSender
	if cfg.Telegram.Enabled {
		senders = append(senders, NewTelegramSender(cfg.Telegram))
	}
	if cfg.Webhook.Enabled {
		senders = append(senders, NewWebhookSender(cfg.Webhook))
	}
	return &Dispatcher{
		senders: senders,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// Dispatch sends one notice to every configured channel.
// Params: context and notice payload.
// Returns: nothing; per-channel failures are logged after retries run out.
func (d *Dispatcher) Dispatch(ctx context.Context, notice Notice) {
	for _, sender := range d.senders {
		if err := d.sendWithRetry(ctx, sender, notice); err != nil {
			d.logger.Warn("notice delivery failed",
				"channel", sender.Channel(),
				"action", notice.Action,
				"error", err.Error())
		}
	}
}

// Channels reports the configured channel names.
// Params: none.
// Returns: channel keys in registration order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.senders))
	for _, sender := range d.senders {
		names = append(names, sender.Channel())
	}
	return names
}

// sendWithRetry sends one notice applying the shared retry policy.
// Params: sender, notice, and dispatcher retry settings.
// Returns: final error after the attempt budget is spent.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notice Notice) error {
	if !d.retry.Enabled {
		return sender.Send(ctx, notice)
	}

	backoff := time.Duration(d.retry.InitialMS) * time.Millisecond
	attempt := 0
	for {
		attempt++
		err := sender.Send(ctx, notice)
		if err == nil {
			if attempt > 1 {
				d.logger.Info("notice send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return nil
		}
		if attempt >= d.retry.MaxAttempts {
			return fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TelegramSender posts notices to a Telegram chat through the Bot API.
// Params: bot token and chat id from config.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram sender.
// Params: Telegram notifier config.
// Returns: initialized sender; construction errors surface on Send.
func NewTelegramSender(cfg config.TelegramConfig) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("telegram chat_id is required")
		return sender
	}

	botClient, err := tgbot.New(cfg.BotToken, tgbot.WithSkipGetMe())
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *TelegramSender) Channel() string {
	return "telegram"
}

// Send posts one notice message to the Telegram chat.
// Params: context and notice payload.
// Returns: transport or API error.
func (s *TelegramSender) Send(ctx context.Context, notice Notice) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return errors.New("telegram client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   notice.Text(),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// WebhookSender posts the notice JSON to a configured HTTP endpoint.
// Params: endpoint URL, method, timeout, and headers.
// Returns: generic HTTP sender.
type WebhookSender struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookSender creates the generic HTTP sender.
// Params: webhook notifier config.
// Returns: initialized sender.
func NewWebhookSender(cfg config.WebhookConfig) *WebhookSender {
	return &WebhookSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *WebhookSender) Channel() string {
	return "webhook"
}

// Send delivers the JSON notice to the configured endpoint.
// Params: context and notice payload.
// Returns: transport or HTTP status error.
func (s *WebhookSender) Send(ctx context.Context, notice Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("webhook", response)
	}
	return nil
}

// unexpectedHTTPStatusError formats a non-2xx HTTP response with optional body.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	rawBody, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}

// NoticeForRaise builds the notice for a newly created alert.
// Params: alert row and active count after creation.
// Returns: raised-action notice.
func NoticeForRaise(alert domain.Alert, activeCount int, at time.Time) Notice {
	return Notice{
		Action:      ActionRaised,
		AlertID:     alert.ID,
		SourceID:    alert.SourceID,
		Kind:        string(alert.Kind),
		Message:     alert.Message,
		ActiveCount: activeCount,
		Timestamp:   at,
	}
}

// NoticeForAcknowledge builds the notice for an acknowledged alert. A zero
// alert id marks a bulk acknowledgment.
// Params: alert id, operator, and active count after the change.
// Returns: acknowledged-action notice.
func NoticeForAcknowledge(alertID int64, operator string, activeCount int, at time.Time) Notice {
	return Notice{
		Action:      ActionAcknowledged,
		AlertID:     alertID,
		Operator:    operator,
		ActiveCount: activeCount,
		Timestamp:   at,
	}
}
