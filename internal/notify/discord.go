package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nexusdash/nexus/internal/models"
)

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type DiscordAdapter struct {
	client *http.Client
}

func (a *DiscordAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	cfg := channel.Config.Discord

	title, err := Render(msg.Template.Subject, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}
	text, err := Render(msg.Template.Body, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}

	alert := msg.Alert
	embed := discordEmbed{
		Title:       title,
		Description: text,
		URL:         msg.Vars["alertUrl"],
		Color:       colorInt(severityColor(alert.Severity)),
		Fields: []discordField{
			{Name: "Severity", Value: string(alert.Severity), Inline: true},
			{Name: "Type", Value: string(alert.Type), Inline: true},
		},
		Timestamp: alert.CreatedAt.UTC().Format(time.RFC3339),
		Footer:    &discordFooter{Text: "Nexus Alerts"},
	}
	if alert.ProviderID != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Provider", Value: alert.ProviderID, Inline: true})
	}

	body, err := json.Marshal(discordPayload{Username: cfg.Username, Embeds: []discordEmbed{embed}})
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to marshal discord payload: %w", err))
	}
	return sendJSON(ctx, a.client, jsonRequest{URL: cfg.WebhookURL, Body: body})
}

func colorInt(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
