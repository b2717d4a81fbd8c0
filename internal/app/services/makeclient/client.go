// Package makeclient forwards incoming Telegram messages to the Make webhook.
package makeclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/barbershop/internal/app/metrics"
	"github.com/R3E-Network/barbershop/internal/httputil"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// ErrNotConfigured is returned by Send when no webhook URL is set.
var ErrNotConfigured = errors.New("MAKE_WEBHOOK_URL is not configured")

// Payload is the JSON document posted to Make for every incoming message.
type Payload struct {
	CorrelationID string  `json:"correlation_id"`
	ChatID        int64   `json:"chat_id"`
	UserID        *int64  `json:"user_id"`
	MessageID     *int64  `json:"message_id"`
	Text          string  `json:"text"`
	Timestamp     string  `json:"timestamp"`
	CallbackURL   *string `json:"callback_url"`
}

// Message is the subset of an incoming message Make needs.
type Message struct {
	CorrelationID string
	ChatID        int64
	// UserID is nil for anonymous senders such as channel posts.
	UserID    *int64
	MessageID *int64
	Text      string
	SentAt    time.Time
}

// Config configures the client.
type Config struct {
	WebhookURL  string
	BearerToken string
	// CallbackURL is advertised to Make; empty sends null.
	CallbackURL string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Client posts payloads to the Make webhook.
type Client struct {
	webhookURL  string
	callbackURL string
	http        *httputil.Client
	log         *logger.Logger
}

// New creates a Make webhook client.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("make-client")
	}
	return &Client{
		webhookURL:  strings.TrimSpace(cfg.WebhookURL),
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		http: httputil.NewClient(httputil.ClientConfig{
			Timeout:     cfg.Timeout,
			BearerToken: cfg.BearerToken,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.Backoff,
		}),
		log: log,
	}
}

// Configured reports whether a webhook URL is set.
func (c *Client) Configured() bool {
	return c.webhookURL != ""
}

// BuildPayload converts msg into the webhook document.
func (c *Client) BuildPayload(msg Message) Payload {
	p := Payload{
		CorrelationID: msg.CorrelationID,
		ChatID:        msg.ChatID,
		UserID:        msg.UserID,
		MessageID:     msg.MessageID,
		Text:          msg.Text,
		Timestamp:     msg.SentAt.UTC().Format(time.RFC3339),
	}
	if c.callbackURL != "" {
		cb := c.callbackURL
		p.CallbackURL = &cb
	}
	return p
}

// Send delivers msg to Make, retrying transport failures.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	start := time.Now()
	err := c.http.PostJSON(ctx, c.webhookURL, c.BuildPayload(msg))
	metrics.RecordWebhookDelivery(err == nil, time.Since(start))
	if err != nil {
		c.log.WithError(err).
			WithField("correlation_id", msg.CorrelationID).
			Warn("make webhook delivery failed")
		return err
	}
	c.log.WithField("correlation_id", msg.CorrelationID).Debug("make webhook delivered")
	return nil
}
