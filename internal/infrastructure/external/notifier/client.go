// Package notifier implements the outbound notification webhook client.
// StudyQuest does not own a delivery channel: push, LINE or email delivery
// is handled by a separate service behind a single webhook endpoint.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/studyquest-hub/studyquest-backend/pkg/circuitbreaker"
	"github.com/studyquest-hub/studyquest-backend/pkg/retry"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

var (
	// ErrNotifierDisabled is returned when the client is constructed without a webhook URL.
	ErrNotifierDisabled = errors.New("notifier: webhook URL not configured")

	// ErrDeliveryFailed is returned when the webhook rejects the notification.
	ErrDeliveryFailed = errors.New("notifier: delivery failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// WebhookURL is the notification delivery endpoint.
	WebhookURL string

	// AuthToken is sent as a bearer token (empty if no auth).
	AuthToken string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(webhookURL string) ClientConfig {
	return ClientConfig{
		WebhookURL:    webhookURL,
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// notificationPayload is the webhook request body.
type notificationPayload struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	SentAt  string `json:"sent_at"`
}

// Client delivers notifications over HTTP with retries and a circuit breaker.
// Implements the eventhandler.Notifier interface.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewClient creates a new webhook notifier client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retrier: retry.New(
			retry.WithMaxAttempts(config.RetryAttempts),
			retry.WithInitialDelay(config.RetryDelay),
		),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("notifier")),
		logger:  config.Logger.With("component", "notifier"),
	}
}

// Notify delivers one notification to the user through the webhook.
// 4xx responses are not retried - the payload will not get better.
func (c *Client) Notify(ctx context.Context, userID, kind, message string) error {
	if c.config.WebhookURL == "" {
		return ErrNotifierDisabled
	}

	payload := notificationPayload{
		UserID:  userID,
		Kind:    kind,
		Message: message,
		SentAt:  timeutil.Now().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifier: failed to marshal payload: %w", err)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.send(ctx, body)
		})
	})
	if err != nil {
		c.logger.Warn("notification delivery failed",
			"user_id", userID,
			"kind", kind,
			"error", err,
		)
		return err
	}

	c.logger.Debug("notification delivered", "user_id", userID, "kind", kind)
	return nil
}

func (c *Client) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("notifier: failed to build request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode))
	default:
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
}
