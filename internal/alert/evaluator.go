package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusdash/nexus/internal/metrics"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

const defaultEvaluationConcurrency = 10

// EvaluationResult describes one pass of a single rule.
type EvaluationResult struct {
	RuleID       string
	Triggered    bool
	CurrentValue float64
	Threshold    float64
	Samples      int64
	InCooldown   bool
	Alert        *models.Alert
	AlertCreated bool
	Err          error
}

type RuleEvaluator struct {
	db           *gorm.DB
	aggregator   monitor.Aggregator
	alertManager *AlertManager
	now          func() time.Time
	sem          *semaphore.Weighted
	concurrency  int64
}

type EvaluatorOption func(*RuleEvaluator)

func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *RuleEvaluator) { e.now = now }
}

// WithConcurrency bounds how many rules EvaluateAll runs at once.
func WithConcurrency(n int) EvaluatorOption {
	return func(e *RuleEvaluator) {
		if n > 0 {
			e.concurrency = int64(n)
		}
	}
}

func NewRuleEvaluator(db *gorm.DB, aggregator monitor.Aggregator, alertManager *AlertManager, opts ...EvaluatorOption) *RuleEvaluator {
	e := &RuleEvaluator{
		db:           db,
		aggregator:   aggregator,
		alertManager: alertManager,
		now:          func() time.Time { return time.Now().UTC() },
		concurrency:  defaultEvaluationConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.concurrency)
	return e
}

// Evaluate checks one rule against its trailing window and raises an alert
// when the condition holds. A rule still in cooldown is skipped without
// querying any metric.
func (e *RuleEvaluator) Evaluate(ctx context.Context, rule *models.AlertRule) EvaluationResult {
	now := e.now()
	result := EvaluationResult{
		RuleID:    rule.ID,
		Threshold: rule.Conditions.Threshold,
	}

	if rule.InCooldown(now) {
		result.InCooldown = true
		metrics.RuleEvaluations.WithLabelValues("cooldown").Inc()
		return result
	}

	cond := rule.Conditions
	agg, err := e.aggregator.Aggregate(ctx, monitor.Query{
		UserID:      rule.UserID,
		ProviderID:  rule.ProviderID,
		Metric:      cond.Metric,
		Aggregation: cond.Aggregation,
		Window:      cond.Window(),
		Until:       now,
	})
	if err != nil {
		result.Err = fmt.Errorf("failed to aggregate metric for rule %s: %w", rule.ID, err)
		metrics.RuleEvaluations.WithLabelValues("error").Inc()
		return result
	}
	result.CurrentValue = agg.Value
	result.Samples = agg.Samples

	if cond.MinimumDataPoints > 0 && agg.Samples < int64(cond.MinimumDataPoints) {
		metrics.RuleEvaluations.WithLabelValues("insufficient_data").Inc()
		return result
	}
	if !cond.Operator.Compare(agg.Value, cond.Threshold) {
		metrics.RuleEvaluations.WithLabelValues("passed").Inc()
		return result
	}
	result.Triggered = true

	alert, created, err := e.alertManager.CreateAlert(ctx, CreateAlertInput{
		UserID:     rule.UserID,
		ProviderID: rule.ProviderID,
		RuleID:     rule.ID,
		Type:       rule.Type,
		Severity:   rule.Severity,
		Title:      fmt.Sprintf("Alert rule %q triggered", rule.Name),
		Message:    formatRuleMessage(rule, agg.Value),
		Metadata: models.AlertMetadata{
			Source: models.AlertSourceRule,
			Rule: &models.RuleTrigger{
				RuleID:        rule.ID,
				RuleName:      rule.Name,
				Metric:        cond.Metric,
				Operator:      cond.Operator,
				Threshold:     cond.Threshold,
				CurrentValue:  agg.Value,
				WindowMinutes: cond.TimeWindowMinutes,
				Samples:       agg.Samples,
			},
		},
	})
	if err != nil {
		result.Err = fmt.Errorf("failed to create alert for rule %s: %w", rule.ID, err)
		metrics.RuleEvaluations.WithLabelValues("error").Inc()
		return result
	}
	result.Alert = alert
	result.AlertCreated = created
	metrics.RuleEvaluations.WithLabelValues("triggered").Inc()

	if created {
		if err := e.db.WithContext(ctx).Model(&models.AlertRule{}).
			Where("id = ?", rule.ID).
			Updates(map[string]interface{}{
				"last_triggered": now,
				"trigger_count":  gorm.Expr("trigger_count + 1"),
			}).Error; err != nil {
			result.Err = fmt.Errorf("failed to update rule: %w", err)
			return result
		}
		rule.LastTriggered = &now
		rule.TriggerCount++
	}

	logrus.WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"value":    agg.Value,
		"samples":  agg.Samples,
		"alert_id": alert.ID,
		"created":  created,
	}).Info("Alert rule triggered")
	return result
}

// EvaluateUser runs every active rule of one user sequentially.
func (e *RuleEvaluator) EvaluateUser(ctx context.Context, userID string) ([]EvaluationResult, error) {
	var rules []models.AlertRule
	if err := e.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	results := make([]EvaluationResult, 0, len(rules))
	for i := range rules {
		results = append(results, e.Evaluate(ctx, &rules[i]))
	}
	return results, nil
}

// EvaluateAll runs every active rule across all users with bounded
// concurrency. Results keep the order of the rules as loaded.
func (e *RuleEvaluator) EvaluateAll(ctx context.Context) ([]EvaluationResult, error) {
	var rules []models.AlertRule
	if err := e.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	results := make([]EvaluationResult, len(rules))
	var wg sync.WaitGroup
	for i := range rules {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[i] = EvaluationResult{RuleID: rules[i].ID, Err: err}
				return
			}
			defer e.sem.Release(1)

			results[i] = e.Evaluate(ctx, &rules[i])
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			logrus.WithFields(logrus.Fields{
				"rule_id": r.RuleID,
			}).WithError(r.Err).Warn("Rule evaluation failed")
		}
	}
	return results, nil
}

func formatRuleMessage(rule *models.AlertRule, value float64) string {
	cond := rule.Conditions
	return fmt.Sprintf("%s is %s (threshold %s %s) over the last %d minutes",
		cond.Metric,
		formatValue(cond.Metric, value),
		cond.Operator.Symbol(),
		formatValue(cond.Metric, cond.Threshold),
		cond.TimeWindowMinutes)
}

func formatValue(metric models.Metric, v float64) string {
	switch metric {
	case models.MetricCost:
		return fmt.Sprintf("$%.2f", v)
	case models.MetricErrorRate, models.MetricUptime:
		return fmt.Sprintf("%.2f%%", v)
	case models.MetricResponseTime:
		return fmt.Sprintf("%.0fms", v)
	default:
		return fmt.Sprintf("%.2f %s", v, metric.Unit())
	}
}
