package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/managethefans/portal-api/internal/config"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
}

// WebhookSender posts outbound SMS to an HTTP gateway. The gateway owns
// carrier delivery; a non-2xx response is a failed send.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(cfg config.SMSConfig) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(cfg.WebhookURL),
		token: strings.TrimSpace(cfg.Token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}

	payload := map[string]string{
		"to":   to,
		"body": body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSender accepts every send; used when no SMS gateway is configured.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) Send(_ context.Context, _ string, _ string) error {
	return nil
}
