package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorCompare(t *testing.T) {
	tests := []struct {
		op        Operator
		value     float64
		threshold float64
		want      bool
	}{
		{OperatorGT, 10, 5, true},
		{OperatorGT, 5, 5, false},
		{OperatorGTE, 5, 5, true},
		{OperatorLT, 4, 5, true},
		{OperatorLT, 5, 5, false},
		{OperatorLTE, 5, 5, true},
		{OperatorEQ, 5, 5, true},
		{OperatorEQ, 5.1, 5, false},
		{Operator("between"), 5, 5, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Compare(tt.value, tt.threshold))
		})
	}
}

func TestAlertRuleInCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := &AlertRule{CooldownMinutes: 60}

	assert.False(t, rule.InCooldown(now), "never triggered")

	last := now.Add(-30 * time.Minute)
	rule.LastTriggered = &last
	assert.True(t, rule.InCooldown(now))

	last = now.Add(-60 * time.Minute)
	rule.LastTriggered = &last
	assert.False(t, rule.InCooldown(now), "cooldown ends exactly at the boundary")
}

func TestSeverityUrgent(t *testing.T) {
	assert.True(t, SeverityCritical.Urgent())
	assert.True(t, SeverityHigh.Urgent())
	assert.False(t, SeverityMedium.Urgent())
	assert.False(t, SeverityLow.Urgent())
}

func TestChannelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		typ     ChannelType
		config  ChannelConfig
		wantErr bool
	}{
		{"in app without config", ChannelInApp, ChannelConfig{}, false},
		{"in app with config", ChannelInApp, ChannelConfig{Teams: &TeamsChannelConfig{WebhookURL: "https://x"}}, true},
		{"email ok", ChannelEmail, ChannelConfig{Email: &EmailChannelConfig{To: []string{"ops@example.com"}}}, false},
		{"email no recipients", ChannelEmail, ChannelConfig{Email: &EmailChannelConfig{}}, true},
		{"email bad address", ChannelEmail, ChannelConfig{Email: &EmailChannelConfig{To: []string{"nope"}}}, true},
		{"webhook ok", ChannelWebhook, ChannelConfig{Webhook: &WebhookChannelConfig{URL: "https://hooks.example.com/a"}}, false},
		{"webhook bad method", ChannelWebhook, ChannelConfig{Webhook: &WebhookChannelConfig{URL: "https://hooks.example.com/a", Method: "GET"}}, true},
		{"webhook bad scheme", ChannelWebhook, ChannelConfig{Webhook: &WebhookChannelConfig{URL: "ftp://hooks.example.com"}}, true},
		{"slack ok", ChannelSlack, ChannelConfig{Slack: &SlackChannelConfig{WebhookURL: "https://hooks.slack.com/services/x"}}, false},
		{"slack missing", ChannelSlack, ChannelConfig{}, true},
		{"two configs", ChannelDiscord, ChannelConfig{
			Discord: &DiscordChannelConfig{WebhookURL: "https://discord.com/api/webhooks/1"},
			Teams:   &TeamsChannelConfig{WebhookURL: "https://outlook.office.com/webhook/1"},
		}, true},
		{"unknown type", ChannelType("pager"), ChannelConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate(tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChannelConfigRedacted(t *testing.T) {
	cfg := ChannelConfig{Webhook: &WebhookChannelConfig{URL: "https://x.example.com", Secret: "s3cr3t"}}

	redacted := cfg.Redacted()
	assert.Equal(t, "********", redacted.Webhook.Secret)
	assert.Equal(t, "s3cr3t", cfg.Webhook.Secret, "original must be untouched")
}

func TestBudgetPeriodStart(t *testing.T) {
	now := time.Date(2024, 5, 17, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), Budget{Period: BudgetDaily}.PeriodStart(now))
	assert.Equal(t, time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC), Budget{Period: BudgetWeekly}.PeriodStart(now))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Budget{Period: BudgetMonthly}.PeriodStart(now))
}

func TestBudgetThresholdDefault(t *testing.T) {
	assert.Equal(t, 80.0, Budget{}.Threshold())
	assert.Equal(t, 95.0, Budget{AlertThreshold: 95}.Threshold())
}

func TestAlertMetadataValues(t *testing.T) {
	meta := AlertMetadata{
		Source: AlertSourceRule,
		Rule: &RuleTrigger{
			RuleID:       "r1",
			RuleName:     "High cost",
			Metric:       MetricCost,
			Threshold:    100,
			CurrentValue: 123.456,
		},
	}

	v := meta.Values()
	assert.Equal(t, "rule", v["source"])
	assert.Equal(t, "r1", v["ruleId"])
	assert.Equal(t, "123.46", v["currentValue"])
	assert.Equal(t, "100.00", v["threshold"])
}

func TestRoleHasPermission(t *testing.T) {
	assert.True(t, RoleAdmin.HasPermission(ActionManageJobs))
	assert.False(t, RoleUser.HasPermission(ActionManageJobs))
	assert.True(t, RoleUser.HasPermission(ActionManageRules))
	assert.True(t, RoleViewer.HasPermission(ActionViewAlerts))
	assert.False(t, RoleViewer.HasPermission(ActionManageAlerts))
	assert.False(t, Role("").HasPermission(ActionViewAlerts))
}

func TestValidationError(t *testing.T) {
	err := Invalid("threshold", "must be >= %d", 0)
	require.True(t, IsValidationError(err))
	assert.Equal(t, "threshold: must be >= 0", err.Error())
	assert.False(t, IsValidationError(ErrNotFound))
}

func TestWithSecretFrom(t *testing.T) {
	stored := ChannelConfig{Webhook: &WebhookChannelConfig{URL: "https://example.com", Secret: "s3cr3t"}}

	merged := stored.Redacted().WithSecretFrom(stored)
	assert.Equal(t, "s3cr3t", merged.Webhook.Secret)
	assert.Equal(t, "s3cr3t", stored.Webhook.Secret, "redacting copies the config")

	cleared := ChannelConfig{Webhook: &WebhookChannelConfig{URL: "https://example.com"}}
	assert.Empty(t, cleared.WithSecretFrom(stored).Webhook.Secret, "an empty secret removes it")

	slack := ChannelConfig{Slack: &SlackChannelConfig{WebhookURL: "https://hooks.slack.com/x"}}
	assert.Equal(t, slack, slack.WithSecretFrom(stored))
}
