// Package notify delivers the secrets of secondary credentials to their
// owners. Delivery technology lives behind [Notifier].
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Kind names the message template.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
)

// Message is one outbound notification. Secret is the plaintext code or
// token and must only ever reach the recipient.
type Message struct {
	Kind      Kind      `json:"kind"`
	UserID    int64     `json:"user_id"`
	To        string    `json:"to"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier sends messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) error { return nil }

// LogNotifier writes messages to a logger. It prints the secret and is meant
// for local development only.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify kind=%s user_id=%d to=%s secret=%s expires_at=%s",
		msg.Kind, msg.UserID, msg.To, msg.Secret, msg.ExpiresAt.Format(time.RFC3339))
	return nil
}

// WebhookNotifier POSTs each message as JSON to URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	// Header is added to every request, e.g. a shared secret.
	Header http.Header
}

// NewWebhookNotifier returns a notifier with a client bounded by timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.URL == "" {
		return errors.New("notify: webhook url not configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range n.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
