package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nexusdash/nexus/internal/models"
)

// teamsCard is the legacy Office 365 connector MessageCard accepted by
// Teams incoming webhooks.
type teamsCard struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	ThemeColor      string         `json:"themeColor"`
	Summary         string         `json:"summary"`
	Title           string         `json:"title"`
	Text            string         `json:"text"`
	Sections        []teamsSection `json:"sections,omitempty"`
	PotentialAction []teamsAction  `json:"potentialAction,omitempty"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []teamsTarget `json:"targets"`
}

type teamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

type TeamsAdapter struct {
	client *http.Client
}

func (a *TeamsAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	title, err := Render(msg.Template.Subject, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}
	text, err := Render(msg.Template.Body, msg.Vars, false)
	if err != nil {
		return permanentFailure(err)
	}

	alert := msg.Alert
	facts := []teamsFact{
		{Name: "Severity", Value: string(alert.Severity)},
		{Name: "Type", Value: string(alert.Type)},
		{Name: "Time", Value: msg.Vars["createdAt"]},
	}
	if alert.ProviderID != "" {
		facts = append(facts, teamsFact{Name: "Provider", Value: alert.ProviderID})
	}

	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: strings.TrimPrefix(severityColor(alert.Severity), "#"),
		Summary:    title,
		Title:      title,
		Text:       text,
		Sections:   []teamsSection{{Facts: facts}},
	}
	if url := msg.Vars["alertUrl"]; url != "" {
		card.PotentialAction = []teamsAction{{
			Type:    "OpenUri",
			Name:    "View alert",
			Targets: []teamsTarget{{OS: "default", URI: url}},
		}}
	}

	body, err := json.Marshal(card)
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to marshal teams card: %w", err))
	}
	return sendJSON(ctx, a.client, jsonRequest{URL: channel.Config.Teams.WebhookURL, Body: body})
}
