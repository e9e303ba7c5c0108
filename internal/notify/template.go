package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/valyala/fasttemplate"
	"gorm.io/gorm"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// Template is the subject and body pair rendered for one delivery.
type Template struct {
	Name    string
	Subject string
	Body    string
}

var defaultTemplates = map[models.ChannelType]Template{
	models.ChannelEmail: {
		Name:    "default-email",
		Subject: "[{{severity}}] {{title}}",
		Body: "{{message}}\n\n" +
			"Type: {{type}}\n" +
			"Severity: {{severity}}\n" +
			"Provider: {{providerId}}\n" +
			"Time: {{timestamp}}\n\n" +
			"View alert: {{alertUrl}}\n",
	},
	models.ChannelWebhook: {
		Name:    "default-webhook",
		Subject: "{{title}}",
		Body: `{"alertId":"{{alertId}}","title":"{{title}}","message":"{{message}}",` +
			`"type":"{{type}}","severity":"{{severity}}","providerId":"{{providerId}}",` +
			`"ruleId":"{{ruleId}}","createdAt":"{{createdAt}}","timestamp":"{{timestamp}}",` +
			`"alertUrl":"{{alertUrl}}"}`,
	},
	models.ChannelSlack: {
		Name:    "default-slack",
		Subject: "{{title}}",
		Body:    "{{message}}",
	},
	models.ChannelDiscord: {
		Name:    "default-discord",
		Subject: "{{title}}",
		Body:    "{{message}}",
	},
	models.ChannelTeams: {
		Name:    "default-teams",
		Subject: "{{title}}",
		Body:    "{{message}}",
	},
	models.ChannelInApp: {
		Name:    "default-in-app",
		Subject: "{{title}}",
		Body:    "{{message}}",
	},
}

// DefaultTemplate returns the built-in template for a channel type.
func DefaultTemplate(channelType models.ChannelType) Template {
	if t, ok := defaultTemplates[channelType]; ok {
		return t
	}
	return Template{Name: "default", Subject: "{{title}}", Body: "{{message}}"}
}

// TemplateStore looks up operator-defined templates.
type TemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Select returns the most specific active template for the combination,
// preferring an exact match, then alert type only, then severity only, then
// a channel-wide override, and finally the built-in default.
func (s *TemplateStore) Select(ctx context.Context, channelType models.ChannelType, alertType models.AlertType, severity models.Severity) (Template, error) {
	if s == nil || s.db == nil {
		return DefaultTemplate(channelType), nil
	}

	var candidates []models.NotificationTemplate
	if err := s.db.WithContext(ctx).
		Where("channel_type = ? AND is_active = ?", channelType, true).
		Where("(alert_type = ? OR alert_type = '')", alertType).
		Where("(severity = ? OR severity = '')", severity).
		Order("created_at").
		Find(&candidates).Error; err != nil {
		return Template{}, fmt.Errorf("failed to load templates: %w", err)
	}

	best, bestScore := -1, -1
	for i, c := range candidates {
		score := 0
		if c.AlertType != "" {
			score += 2
		}
		if c.Severity != "" {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return DefaultTemplate(channelType), nil
	}

	t := candidates[best]
	fallback := DefaultTemplate(channelType)
	out := Template{Name: t.Name, Subject: t.Subject, Body: t.Body}
	if out.Subject == "" {
		out.Subject = fallback.Subject
	}
	if out.Body == "" {
		out.Body = fallback.Body
	}
	return out, nil
}

// Variables builds the substitution set for an alert. Metadata details are
// exposed as metadata.<key>.
func Variables(alert *models.Alert, dashboardURL string, now time.Time) map[string]string {
	base := strings.TrimRight(dashboardURL, "/")
	vars := map[string]string{
		"alertId":      alert.ID,
		"title":        alert.Title,
		"message":      alert.Message,
		"type":         string(alert.Type),
		"severity":     string(alert.Severity),
		"providerId":   alert.ProviderID,
		"ruleId":       "",
		"createdAt":    alert.CreatedAt.UTC().Format(time.RFC3339),
		"timestamp":    now.UTC().Format(time.RFC3339),
		"dashboardUrl": base,
		"alertUrl":     fmt.Sprintf("%s/alerts/%s", base, alert.ID),
	}
	if alert.RuleID != nil {
		vars["ruleId"] = *alert.RuleID
	}
	for k, v := range alert.Metadata.Values() {
		vars["metadata."+k] = v
	}
	return vars
}

// Render substitutes {{name}} placeholders. Unknown placeholders are left
// as written. When jsonEscape is set, values are escaped for embedding in a
// JSON string literal.
func Render(tmpl string, vars map[string]string, jsonEscape bool) (string, error) {
	return fasttemplate.ExecuteFuncStringWithErr(tmpl, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		value, ok := vars[strings.TrimSpace(tag)]
		if !ok {
			return w.Write([]byte(startTag + tag + endTag))
		}
		if jsonEscape {
			value = escapeJSON(value)
		}
		return w.Write([]byte(value))
	})
}

func escapeJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(b[1 : len(b)-1])
}
