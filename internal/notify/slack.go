package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/slack-go/slack"
)

type SlackAdapter struct {
	client *http.Client
}

func (a *SlackAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	cfg := channel.Config.Slack

	title, err := Render(msg.Template.Subject, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}
	text, err := Render(msg.Template.Body, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}

	alert := msg.Alert
	attachment := slack.Attachment{
		Color:     severityColor(alert.Severity),
		Fallback:  title,
		Title:     title,
		TitleLink: msg.Vars["alertUrl"],
		Text:      text,
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: string(alert.Severity), Short: true},
			{Title: "Type", Value: string(alert.Type), Short: true},
		},
		Footer: "Nexus Alerts",
		Ts:     json.Number(strconv.FormatInt(alert.CreatedAt.Unix(), 10)),
	}
	if alert.ProviderID != "" {
		attachment.Fields = append(attachment.Fields,
			slack.AttachmentField{Title: "Provider", Value: alert.ProviderID, Short: true})
	}

	err = slack.PostWebhookCustomHTTPContext(ctx, cfg.WebhookURL, a.client, &slack.WebhookMessage{
		Channel:     cfg.Channel,
		Username:    cfg.Username,
		IconEmoji:   severityEmoji(alert.Severity),
		Attachments: []slack.Attachment{attachment},
	})
	return classifySlackError(err)
}

func classifySlackError(err error) DeliveryResult {
	if err == nil {
		return DeliveryResult{Success: true, StatusCode: http.StatusOK, Response: "ok"}
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return DeliveryResult{
			Error:       err.Error(),
			ShouldRetry: true,
			StatusCode:  http.StatusTooManyRequests,
		}
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		_, retry := ClassifyStatus(statusErr.Code)
		return DeliveryResult{
			Error:       fmt.Sprintf("slack webhook returned %d", statusErr.Code),
			ShouldRetry: retry,
			StatusCode:  statusErr.Code,
		}
	}
	return retryableFailure(err)
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "#d32f2f"
	case models.SeverityHigh:
		return "#f57c00"
	case models.SeverityMedium:
		return "#fbc02d"
	default:
		return "#1976d2"
	}
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return ":red_circle:"
	case models.SeverityHigh:
		return ":warning:"
	case models.SeverityMedium:
		return ":large_yellow_circle:"
	default:
		return ":information_source:"
	}
}
