package models

import (
	"fmt"
	"time"
)

type AlertType string

const (
	AlertTypeCostThreshold  AlertType = "cost_threshold"
	AlertTypeRateLimit      AlertType = "rate_limit"
	AlertTypeErrorRate      AlertType = "error_rate"
	AlertTypeDowntime       AlertType = "downtime"
	AlertTypeSlowResponse   AlertType = "slow_response"
	AlertTypeBudgetExceeded AlertType = "budget_exceeded"
)

func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeCostThreshold, AlertTypeRateLimit, AlertTypeErrorRate,
		AlertTypeDowntime, AlertTypeSlowResponse, AlertTypeBudgetExceeded:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Urgent severities are broadcast to every channel by default routing.
func (s Severity) Urgent() bool {
	return s == SeverityCritical || s == SeverityHigh
}

type AlertSource string

const (
	AlertSourceRule      AlertSource = "rule"
	AlertSourceHeuristic AlertSource = "heuristic"
	AlertSourceManual    AlertSource = "manual"
)

// AlertMetadata is a tagged variant: Source says how the alert was produced
// and at most one of the detail pointers is set.
type AlertMetadata struct {
	Source    AlertSource       `json:"source"`
	Rule      *RuleTrigger      `json:"rule,omitempty"`
	ErrorRate *ErrorRateDetails `json:"error_rate,omitempty"`
	Latency   *LatencyDetails   `json:"latency,omitempty"`
	Budget    *BudgetDetails    `json:"budget,omitempty"`
}

type RuleTrigger struct {
	RuleID        string   `json:"rule_id"`
	RuleName      string   `json:"rule_name"`
	Metric        Metric   `json:"metric"`
	Operator      Operator `json:"operator"`
	Threshold     float64  `json:"threshold"`
	CurrentValue  float64  `json:"current_value"`
	WindowMinutes int      `json:"window_minutes"`
	Samples       int64    `json:"samples"`
}

type ErrorRateDetails struct {
	ErrorRate     float64 `json:"error_rate"`
	Samples       int64   `json:"samples"`
	WindowMinutes int     `json:"window_minutes"`
}

type LatencyDetails struct {
	AverageMs     float64 `json:"average_ms"`
	Samples       int64   `json:"samples"`
	WindowMinutes int     `json:"window_minutes"`
}

type BudgetDetails struct {
	BudgetID       string  `json:"budget_id"`
	BudgetName     string  `json:"budget_name"`
	Amount         float64 `json:"amount"`
	Spent          float64 `json:"spent"`
	Utilization    float64 `json:"utilization"`
	AlertThreshold float64 `json:"alert_threshold"`
	Period         string  `json:"period"`
}

// Values flattens the populated detail into template variables.
func (m AlertMetadata) Values() map[string]string {
	v := map[string]string{"source": string(m.Source)}
	switch {
	case m.Rule != nil:
		v["ruleId"] = m.Rule.RuleID
		v["ruleName"] = m.Rule.RuleName
		v["metric"] = string(m.Rule.Metric)
		v["operator"] = string(m.Rule.Operator)
		v["threshold"] = formatFloat(m.Rule.Threshold)
		v["currentValue"] = formatFloat(m.Rule.CurrentValue)
		v["windowMinutes"] = fmt.Sprint(m.Rule.WindowMinutes)
		v["samples"] = fmt.Sprint(m.Rule.Samples)
	case m.ErrorRate != nil:
		v["errorRate"] = formatFloat(m.ErrorRate.ErrorRate)
		v["samples"] = fmt.Sprint(m.ErrorRate.Samples)
		v["windowMinutes"] = fmt.Sprint(m.ErrorRate.WindowMinutes)
	case m.Latency != nil:
		v["averageMs"] = formatFloat(m.Latency.AverageMs)
		v["samples"] = fmt.Sprint(m.Latency.Samples)
		v["windowMinutes"] = fmt.Sprint(m.Latency.WindowMinutes)
	case m.Budget != nil:
		v["budgetId"] = m.Budget.BudgetID
		v["budgetName"] = m.Budget.BudgetName
		v["amount"] = formatFloat(m.Budget.Amount)
		v["spent"] = formatFloat(m.Budget.Spent)
		v["utilization"] = formatFloat(m.Budget.Utilization)
		v["period"] = m.Budget.Period
	}
	return v
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

type Alert struct {
	Model
	UserID     string        `json:"user_id" gorm:"index;not null"`
	ProviderID string        `json:"provider_id,omitempty" gorm:"index"`
	RuleID     *string       `json:"rule_id,omitempty" gorm:"index"`
	Type       AlertType     `json:"type" gorm:"index;not null"`
	Severity   Severity      `json:"severity" gorm:"not null"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	Metadata   AlertMetadata `json:"metadata" gorm:"type:text;serializer:json"`
	IsRead     bool          `json:"is_read" gorm:"index"`
	IsResolved bool          `json:"is_resolved" gorm:"index"`
	ResolvedAt *time.Time    `json:"resolved_at"`
}
