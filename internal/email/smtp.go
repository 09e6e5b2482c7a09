package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/managethefans/portal-api/internal/config"
)

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPService creates an email service backed by an SMTP relay.
func NewSMTPService(cfg config.SMTPConfig) Service {
	from := cfg.From
	if from == "" {
		from = "no-reply@managethefans.local"
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (s *smtpService) SendVerification(ctx context.Context, email string, token string) error {
	body := fmt.Sprintf("Welcome to ManageTheFans. Verify your account with code: %s", token)
	return s.SendCustom(ctx, email, "Verify your account", body)
}

func (s *smtpService) SendWelcome(ctx context.Context, email string, name string) error {
	body := fmt.Sprintf("Hi %s,\n\nYour account has been verified. You can now log in to the portal.", name)
	return s.SendCustom(ctx, email, "Welcome to ManageTheFans", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
