package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink is a delivery channel for alerts. Deliver must be safe for
// concurrent use; the dispatcher handles retries, so implementations
// should fail fast rather than retry internally.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert *Alert) error
}

// ConsoleSink writes alerts to the structured log (for development and
// as a last-resort channel).
type ConsoleSink struct {
	logger *slog.Logger
}

// NewConsoleSink creates a sink that logs alerts.
func NewConsoleSink(logger *slog.Logger) *ConsoleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSink{logger: logger}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Deliver(_ context.Context, alert *Alert) error {
	c.logger.Info("alert",
		"id", alert.ID,
		"category", alert.Category,
		"severity", alert.Severity,
		"title", alert.Title,
		"source", alert.Source,
		"addresses", alert.AffectedAddresses,
		"protocols", alert.AffectedProtocols,
	)
	return nil
}

// WebhookSink POSTs alerts as JSON to a configured URL.
type WebhookSink struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookSink creates a new webhook sink.
func NewWebhookSink(name, url string, headers map[string]string) *WebhookSink {
	return &WebhookSink{
		name:    name,
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookSink) Name() string { return w.name }

func (w *WebhookSink) Deliver(ctx context.Context, alert *Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// TelegramSink sends alerts to a Telegram chat.
type TelegramSink struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramSink creates a new Telegram sink.
func NewTelegramSink(botToken, chatID string) *TelegramSink {
	return &TelegramSink{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(ctx context.Context, alert *Alert) error {
	emoji := t.severityEmoji(alert.Severity)
	text := fmt.Sprintf(`%s *[%s] %s*

%s

*Category:* %s
*Source:* %s
*Time:* %s`,
		emoji,
		strings.ToUpper(string(alert.Severity)),
		escapeMarkdown(alert.Title),
		escapeMarkdown(alert.Description),
		escapeMarkdown(string(alert.Category)),
		escapeMarkdown(alert.Source),
		alert.Timestamp.Format("2006-01-02 15:04:05 UTC"),
	)

	if len(alert.AffectedProtocols) > 0 {
		text += fmt.Sprintf("\n*Protocols:* %s", strings.Join(alert.AffectedProtocols, ", "))
	}
	if len(alert.AffectedAddresses) > 0 {
		text += fmt.Sprintf("\n*Addresses:* %s", strings.Join(alert.AffectedAddresses, ", "))
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (t *TelegramSink) severityEmoji(sev Severity) string {
	switch sev {
	case SeverityHigh:
		return "🔴"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

// KafkaSink publishes alerts to a Kafka topic, keyed by category so
// consumers can partition by alert kind.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-sink")
			}),
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Deliver(ctx context.Context, alert *Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.Category),
		Value: value,
		Time:  alert.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
