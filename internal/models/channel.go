package models

import (
	"fmt"
	"net/mail"
	"net/url"
	"time"
)

type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
	ChannelDiscord ChannelType = "discord"
	ChannelTeams   ChannelType = "teams"
	ChannelInApp   ChannelType = "in_app"
)

func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelEmail, ChannelWebhook, ChannelSlack, ChannelDiscord, ChannelTeams, ChannelInApp:
		return true
	}
	return false
}

// ChannelConfig is a tagged variant keyed by the owning channel's type; only
// the field matching NotificationChannel.Type is populated.
type ChannelConfig struct {
	Email   *EmailChannelConfig   `json:"email,omitempty"`
	Webhook *WebhookChannelConfig `json:"webhook,omitempty"`
	Slack   *SlackChannelConfig   `json:"slack,omitempty"`
	Discord *DiscordChannelConfig `json:"discord,omitempty"`
	Teams   *TeamsChannelConfig   `json:"teams,omitempty"`
}

type EmailChannelConfig struct {
	To []string `json:"to"`
}

type WebhookChannelConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type SlackChannelConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
}

type DiscordChannelConfig struct {
	WebhookURL string `json:"webhook_url"`
	Username   string `json:"username,omitempty"`
}

type TeamsChannelConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Validate checks that exactly the config for channelType is present and usable.
func (c ChannelConfig) Validate(channelType ChannelType) error {
	set := 0
	for _, present := range []bool{c.Email != nil, c.Webhook != nil, c.Slack != nil, c.Discord != nil, c.Teams != nil} {
		if present {
			set++
		}
	}

	switch channelType {
	case ChannelInApp:
		if set != 0 {
			return fmt.Errorf("in_app channels take no configuration")
		}
		return nil
	case ChannelEmail:
		if c.Email == nil || set != 1 {
			return fmt.Errorf("email channel requires email configuration")
		}
		if len(c.Email.To) == 0 {
			return fmt.Errorf("email channel requires at least one recipient")
		}
		for _, addr := range c.Email.To {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("invalid email address %q", addr)
			}
		}
		return nil
	case ChannelWebhook:
		if c.Webhook == nil || set != 1 {
			return fmt.Errorf("webhook channel requires webhook configuration")
		}
		switch c.Webhook.Method {
		case "", "POST", "PUT", "PATCH":
		default:
			return fmt.Errorf("unsupported webhook method %q", c.Webhook.Method)
		}
		return validateURL(c.Webhook.URL)
	case ChannelSlack:
		if c.Slack == nil || set != 1 {
			return fmt.Errorf("slack channel requires slack configuration")
		}
		return validateURL(c.Slack.WebhookURL)
	case ChannelDiscord:
		if c.Discord == nil || set != 1 {
			return fmt.Errorf("discord channel requires discord configuration")
		}
		return validateURL(c.Discord.WebhookURL)
	case ChannelTeams:
		if c.Teams == nil || set != 1 {
			return fmt.Errorf("teams channel requires teams configuration")
		}
		return validateURL(c.Teams.WebhookURL)
	default:
		return fmt.Errorf("invalid channel type: %s", channelType)
	}
}

// RedactedSecret stands in for a webhook secret in API responses.
const RedactedSecret = "********"

// Redacted returns a copy safe to hand back to API callers.
func (c ChannelConfig) Redacted() ChannelConfig {
	if c.Webhook != nil && c.Webhook.Secret != "" {
		w := *c.Webhook
		w.Secret = RedactedSecret
		c.Webhook = &w
	}
	return c
}

// WithSecretFrom returns c with a redacted webhook secret replaced by the
// stored one, so a config read back from the API can be saved unchanged.
func (c ChannelConfig) WithSecretFrom(stored ChannelConfig) ChannelConfig {
	if c.Webhook == nil || c.Webhook.Secret != RedactedSecret {
		return c
	}
	w := *c.Webhook
	w.Secret = ""
	if stored.Webhook != nil {
		w.Secret = stored.Webhook.Secret
	}
	c.Webhook = &w
	return c
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid webhook url %q", raw)
	}
	return nil
}

// DefaultFailureThreshold is the consecutive failure count at which routing
// stops sending to a channel.
const DefaultFailureThreshold = 5

type NotificationChannel struct {
	Model
	UserID       string        `json:"user_id" gorm:"index;not null"`
	Name         string        `json:"name" gorm:"not null"`
	Type         ChannelType   `json:"type" gorm:"index;not null"`
	Config       ChannelConfig `json:"config" gorm:"type:text;serializer:json"`
	IsActive     bool          `json:"is_active"`
	IsVerified   bool          `json:"is_verified"`
	LastUsed     *time.Time    `json:"last_used"`
	FailureCount int           `json:"failure_count"`
}

type UserNotificationPreference struct {
	Model
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_pref_user_type_severity_channel,priority:1"`
	AlertType AlertType `json:"alert_type" gorm:"not null;uniqueIndex:idx_pref_user_type_severity_channel,priority:2"`
	Severity  Severity  `json:"severity" gorm:"not null;uniqueIndex:idx_pref_user_type_severity_channel,priority:3"`
	ChannelID string    `json:"channel_id" gorm:"not null;uniqueIndex:idx_pref_user_type_severity_channel,priority:4"`
	Enabled   bool      `json:"enabled"`
}

// NotificationTemplate overrides the built-in rendering for a channel type,
// optionally narrowed to one alert type and/or severity.
type NotificationTemplate struct {
	Model
	Name        string      `json:"name"`
	ChannelType ChannelType `json:"channel_type" gorm:"index;not null"`
	AlertType   AlertType   `json:"alert_type,omitempty"`
	Severity    Severity    `json:"severity,omitempty"`
	Subject     string      `json:"subject"`
	Body        string      `json:"body"`
	IsActive    bool        `json:"is_active"`
}
