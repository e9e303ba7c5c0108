package models

import (
	"time"
)

type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorGTE Operator = "gte"
	OperatorLT  Operator = "lt"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
)

func (o Operator) IsValid() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ:
		return true
	}
	return false
}

// Compare reports whether value satisfies the operator against threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorGT:
		return value > threshold
	case OperatorGTE:
		return value >= threshold
	case OperatorLT:
		return value < threshold
	case OperatorLTE:
		return value <= threshold
	case OperatorEQ:
		return value == threshold
	default:
		return false
	}
}

func (o Operator) Symbol() string {
	switch o {
	case OperatorGT:
		return ">"
	case OperatorGTE:
		return ">="
	case OperatorLT:
		return "<"
	case OperatorLTE:
		return "<="
	case OperatorEQ:
		return "=="
	default:
		return string(o)
	}
}

type Metric string

const (
	MetricErrorRate    Metric = "error_rate"    // percent of calls that errored, 0-100
	MetricResponseTime Metric = "response_time" // milliseconds
	MetricCost         Metric = "cost"          // currency units
	MetricRequestRate  Metric = "request_rate"  // requests per minute
	MetricUptime       Metric = "uptime"        // percent of successful calls, 0-100
)

func (m Metric) IsValid() bool {
	switch m {
	case MetricErrorRate, MetricResponseTime, MetricCost, MetricRequestRate, MetricUptime:
		return true
	}
	return false
}

// Unit is the natural unit used when the metric is shown to a user.
func (m Metric) Unit() string {
	switch m {
	case MetricErrorRate, MetricUptime:
		return "%"
	case MetricResponseTime:
		return "ms"
	case MetricCost:
		return "$"
	case MetricRequestRate:
		return "requests/min"
	default:
		return ""
	}
}

type Aggregation string

const (
	AggregationAvg   Aggregation = "avg"
	AggregationSum   Aggregation = "sum"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationCount Aggregation = "count"
)

func (a Aggregation) IsValid() bool {
	switch a {
	case "", AggregationAvg, AggregationSum, AggregationMin, AggregationMax, AggregationCount:
		return true
	}
	return false
}

const (
	DefaultCooldownMinutes = 60
	MinTimeWindowMinutes   = 1
	MaxTimeWindowMinutes   = 1440
)

type RuleConditions struct {
	Metric            Metric      `json:"metric"`
	Operator          Operator    `json:"operator"`
	Threshold         float64     `json:"threshold"`
	TimeWindowMinutes int         `json:"time_window_minutes"`
	Aggregation       Aggregation `json:"aggregation,omitempty"`
	MinimumDataPoints int         `json:"minimum_data_points,omitempty"`
}

func (c RuleConditions) Window() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

type AlertRule struct {
	Model
	UserID          string         `json:"user_id" gorm:"index;not null"`
	ProviderID      string         `json:"provider_id,omitempty" gorm:"index"` // empty means every provider
	Name            string         `json:"name" gorm:"not null"`
	Description     string         `json:"description"`
	Type            AlertType      `json:"type" gorm:"not null"`
	Severity        Severity       `json:"severity" gorm:"not null"`
	Conditions      RuleConditions `json:"conditions" gorm:"type:text;serializer:json"`
	IsActive        bool           `json:"is_active" gorm:"index"`
	CooldownMinutes int            `json:"cooldown_minutes"`
	LastTriggered   *time.Time     `json:"last_triggered"`
	TriggerCount    int            `json:"trigger_count"`
}

func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// InCooldown reports whether the rule fired too recently to fire again at now.
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.LastTriggered == nil {
		return false
	}
	return now.Before(r.LastTriggered.Add(r.Cooldown()))
}
