package notify

import (
	"context"
	"fmt"

	"github.com/nexusdash/nexus/internal/models"
)

type EmailAdapter struct {
	mailer Mailer
}

func (a *EmailAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	if a.mailer == nil {
		return permanentFailure(fmt.Errorf("email transport is not configured"))
	}
	cfg := channel.Config.Email
	if cfg == nil || len(cfg.To) == 0 {
		return permanentFailure(fmt.Errorf("email channel has no recipients"))
	}

	subject, err := Render(msg.Template.Subject, msg.Vars, false)
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to render subject: %w", err))
	}
	text, err := Render(msg.Template.Body, msg.Vars, false)
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to render body: %w", err))
	}

	id, err := a.mailer.Send(ctx, EmailMessage{
		To:      cfg.To,
		Subject: subject,
		Text:    text,
		Headers: map[string]string{
			"X-Alert-ID":       msg.Alert.ID,
			"X-Alert-Severity": string(msg.Alert.Severity),
			"X-Alert-Type":     string(msg.Alert.Type),
		},
		Tags: map[string]string{
			"alert_type":     string(msg.Alert.Type),
			"alert_severity": string(msg.Alert.Severity),
		},
	})
	if err != nil {
		return retryableFailure(err)
	}

	response := fmt.Sprintf("sent to %d recipient(s)", len(cfg.To))
	if id != "" {
		response += " id=" + id
	}
	return DeliveryResult{Success: true, Response: response}
}
