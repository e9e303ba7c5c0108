package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nexusdash/nexus/internal/models"
)

// DeliveryResult is the outcome of a single send attempt.
type DeliveryResult struct {
	Success     bool
	Error       string
	Response    string
	ShouldRetry bool
	StatusCode  int
}

func retryableFailure(err error) DeliveryResult {
	return DeliveryResult{Error: err.Error(), ShouldRetry: true}
}

func permanentFailure(err error) DeliveryResult {
	return DeliveryResult{Error: err.Error()}
}

// Message is an alert prepared for one channel: the template is already
// selected and the variables computed.
type Message struct {
	Alert    *models.Alert
	Template Template
	Vars     map[string]string
}

// Adapter performs the side-effecting send for one channel type.
type Adapter interface {
	Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult
}

type Dispatcher struct {
	templates    *TemplateStore
	adapters     map[models.ChannelType]Adapter
	dashboardURL string
	now          func() time.Time
}

type DispatcherConfig struct {
	DashboardURL string
	HTTPClient   *http.Client
	Mailer       Mailer
}

func NewDispatcher(templates *TemplateStore, cfg DispatcherConfig) *Dispatcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		templates:    templates,
		dashboardURL: cfg.DashboardURL,
		now:          func() time.Time { return time.Now().UTC() },
		adapters: map[models.ChannelType]Adapter{
			models.ChannelEmail:   &EmailAdapter{mailer: cfg.Mailer},
			models.ChannelWebhook: &WebhookAdapter{client: client},
			models.ChannelSlack:   &SlackAdapter{client: client},
			models.ChannelDiscord: &DiscordAdapter{client: client},
			models.ChannelTeams:   &TeamsAdapter{client: client},
			models.ChannelInApp:   InAppAdapter{},
		},
	}
}

// Register replaces the adapter used for a channel type.
func (d *Dispatcher) Register(channelType models.ChannelType, adapter Adapter) {
	d.adapters[channelType] = adapter
}

// Deliver renders the alert for the channel and sends it.
func (d *Dispatcher) Deliver(ctx context.Context, alert *models.Alert, channel *models.NotificationChannel) DeliveryResult {
	adapter, ok := d.adapters[channel.Type]
	if !ok {
		return permanentFailure(fmt.Errorf("unsupported channel type: %s", channel.Type))
	}
	if err := channel.Config.Validate(channel.Type); err != nil {
		return permanentFailure(fmt.Errorf("invalid channel configuration: %w", err))
	}

	tmpl, err := d.templates.Select(ctx, channel.Type, alert.Type, alert.Severity)
	if err != nil {
		return retryableFailure(err)
	}

	result := adapter.Deliver(ctx, Message{
		Alert:    alert,
		Template: tmpl,
		Vars:     Variables(alert, d.dashboardURL, d.now()),
	}, channel)
	if !result.Success && errors.Is(ctx.Err(), context.Canceled) {
		result.ShouldRetry = true
	}
	return result
}
