package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nexusdash/nexus/internal/models"
)

// SignatureHeader carries the HMAC-SHA256 of the request body when the
// webhook has a secret.
const SignatureHeader = "X-Nexus-Signature"

// Sign returns "sha256=<hex>" over the exact body bytes.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type WebhookAdapter struct {
	client *http.Client
}

func (a *WebhookAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	cfg := channel.Config.Webhook

	body, err := Render(msg.Template.Body, msg.Vars, true)
	if err != nil {
		return permanentFailure(fmt.Errorf("failed to render webhook body: %w", err))
	}
	if !json.Valid([]byte(body)) {
		return permanentFailure(fmt.Errorf("webhook template %q did not render valid JSON", msg.Template.Name))
	}

	headers := map[string]string{
		"X-Nexus-Alert-Id": msg.Alert.ID,
		"X-Nexus-Event":    "alert." + string(msg.Alert.Type),
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Secret != "" {
		headers[SignatureHeader] = Sign(cfg.Secret, []byte(body))
	}

	return sendJSON(ctx, a.client, jsonRequest{
		Method:  cfg.Method,
		URL:     cfg.URL,
		Headers: headers,
		Body:    []byte(body),
	})
}
