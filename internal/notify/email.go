package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nexusdash/nexus/internal/config"
	"github.com/resend/resend-go/v2"
	"gopkg.in/gomail.v2"
)

type EmailMessage struct {
	To      []string
	Subject string
	Text    string
	Headers map[string]string
	Tags    map[string]string
}

// Mailer sends one email and returns a provider message id when one exists.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// NewMailer builds the mailer selected by configuration.
func NewMailer(cfg config.EmailConfig, httpClient *http.Client) (Mailer, error) {
	switch cfg.Provider {
	case "", "smtp":
		return NewSMTPMailer(cfg), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend provider requires notifications.email.resend_api_key")
		}
		return NewResendMailer(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.from, m.fromName)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	gm.SetBody("text/plain", msg.Text)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return "", nil
}

type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(cfg config.EmailConfig, httpClient *http.Client) *ResendMailer {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &ResendMailer{
		client: resend.NewCustomClient(httpClient, cfg.ResendAPIKey),
		from:   from,
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg EmailMessage) (string, error) {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		Headers: msg.Headers,
	}
	for name, value := range msg.Tags {
		params.Tags = append(params.Tags, resend.Tag{Name: name, Value: value})
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	sent, err := m.client.Emails.Send(params)
	if err != nil {
		return "", fmt.Errorf("failed to send email via resend: %w", err)
	}
	return sent.Id, nil
}
