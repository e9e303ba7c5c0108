package models

import (
	"time"
)

// APICall is one recorded third-party API request. The table is written by
// the ingestion side of the dashboard; the alerting core only aggregates it.
type APICall struct {
	Model
	UserID     string    `json:"user_id" gorm:"index:idx_api_calls_user_time,priority:1;not null"`
	ProviderID string    `json:"provider_id" gorm:"index"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	LatencyMs  float64   `json:"latency_ms"`
	Cost       float64   `json:"cost"`
	IsError    bool      `json:"is_error"`
	Timestamp  time.Time `json:"timestamp" gorm:"index:idx_api_calls_user_time,priority:2"`
}

type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetWeekly  BudgetPeriod = "weekly"
	BudgetMonthly BudgetPeriod = "monthly"
)

const DefaultBudgetAlertThreshold = 80.0

// Budget caps spend for a user, optionally for a single provider.
type Budget struct {
	Model
	UserID         string       `json:"user_id" gorm:"index;not null"`
	ProviderID     string       `json:"provider_id,omitempty"`
	Name           string       `json:"name"`
	Amount         float64      `json:"amount"`
	Period         BudgetPeriod `json:"period"`
	AlertThreshold float64      `json:"alert_threshold"` // percent of Amount
	IsActive       bool         `json:"is_active"`
}

// Threshold returns the alert threshold percentage, defaulting to 80.
func (b Budget) Threshold() float64 {
	if b.AlertThreshold <= 0 {
		return DefaultBudgetAlertThreshold
	}
	return b.AlertThreshold
}

// PeriodStart returns the beginning of the budget period containing now.
func (b Budget) PeriodStart(now time.Time) time.Time {
	switch b.Period {
	case BudgetDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case BudgetWeekly:
		return now.AddDate(0, 0, -7)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
}
