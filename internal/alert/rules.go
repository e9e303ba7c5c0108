package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RuleManager struct {
	db              *gorm.DB
	aggregator      monitor.Aggregator
	now             func() time.Time
	defaultCooldown int
}

func NewRuleManager(db *gorm.DB, aggregator monitor.Aggregator) *RuleManager {
	return &RuleManager{
		db:         db,
		aggregator: aggregator,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetDefaultCooldown sets the cooldown given to rules that omit one.
func (rm *RuleManager) SetDefaultCooldown(minutes int) {
	if minutes > 0 {
		rm.defaultCooldown = minutes
	}
}

// DefaultCooldown is the cooldown, in minutes, for rules submitted without
// one. An explicit zero is kept and means the rule has no cooldown.
func (rm *RuleManager) DefaultCooldown() int {
	if rm.defaultCooldown > 0 {
		return rm.defaultCooldown
	}
	return models.DefaultCooldownMinutes
}

func (rm *RuleManager) prepare(userID string, rule *models.AlertRule) error {
	rule.ID = ""
	rule.UserID = userID
	rule.LastTriggered = nil
	rule.TriggerCount = 0
	return ValidateRule(rule)
}

// ValidateRule rejects rules that could never be evaluated.
func ValidateRule(rule *models.AlertRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return models.Invalid("name", "is required")
	}
	if !rule.Type.IsValid() {
		return models.Invalid("type", "invalid alert type %q", rule.Type)
	}
	if !rule.Severity.IsValid() {
		return models.Invalid("severity", "invalid severity %q", rule.Severity)
	}

	cond := rule.Conditions
	if !cond.Metric.IsValid() {
		return models.Invalid("conditions.metric", "invalid metric %q", cond.Metric)
	}
	if !cond.Operator.IsValid() {
		return models.Invalid("conditions.operator", "invalid operator %q", cond.Operator)
	}
	if !cond.Aggregation.IsValid() {
		return models.Invalid("conditions.aggregation", "invalid aggregation %q", cond.Aggregation)
	}
	if cond.Threshold < 0 {
		return models.Invalid("conditions.threshold", "must not be negative")
	}
	if cond.TimeWindowMinutes < models.MinTimeWindowMinutes || cond.TimeWindowMinutes > models.MaxTimeWindowMinutes {
		return models.Invalid("conditions.time_window_minutes", "must be between %d and %d",
			models.MinTimeWindowMinutes, models.MaxTimeWindowMinutes)
	}
	if cond.MinimumDataPoints < 0 {
		return models.Invalid("conditions.minimum_data_points", "must not be negative")
	}

	if rule.CooldownMinutes < 0 {
		return models.Invalid("cooldown_minutes", "must not be negative")
	}
	return nil
}

func (rm *RuleManager) CreateRule(ctx context.Context, userID string, rule *models.AlertRule) error {
	if err := rm.prepare(userID, rule); err != nil {
		return err
	}
	if err := rm.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"user_id": userID,
		"metric":  rule.Conditions.Metric,
	}).Info("Alert rule created")
	return nil
}

// UpdateRule replaces the editable fields of an existing rule. Trigger
// history is kept.
func (rm *RuleManager) UpdateRule(ctx context.Context, userID, ruleID string, update *models.AlertRule) (*models.AlertRule, error) {
	existing, err := rm.GetRule(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}

	update.Model = existing.Model
	update.UserID = existing.UserID
	update.LastTriggered = existing.LastTriggered
	update.TriggerCount = existing.TriggerCount
	if err := ValidateRule(update); err != nil {
		return nil, err
	}
	if err := rm.db.WithContext(ctx).Save(update).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return update, nil
}

func (rm *RuleManager) DeleteRule(ctx context.Context, userID, ruleID string) error {
	res := rm.db.WithContext(ctx).Where("id = ? AND user_id = ?", ruleID, userID).Delete(&models.AlertRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (rm *RuleManager) GetRule(ctx context.Context, userID, ruleID string) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := rm.db.WithContext(ctx).Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}
	return &rule, nil
}

func (rm *RuleManager) ListRules(ctx context.Context, userID string, active *bool) ([]models.AlertRule, error) {
	query := rm.db.WithContext(ctx).Where("user_id = ?", userID)
	if active != nil {
		query = query.Where("is_active = ?", *active)
	}
	var rules []models.AlertRule
	if err := query.Order("created_at").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (rm *RuleManager) SetRuleActive(ctx context.Context, userID, ruleID string, active bool) (*models.AlertRule, error) {
	rule, err := rm.GetRule(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}
	if err := rm.db.WithContext(ctx).Model(rule).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	rule.IsActive = active
	return rule, nil
}

// DefaultRules is the starter set offered to a user with no rules.
func DefaultRules() []models.AlertRule {
	return []models.AlertRule{
		{
			Name:        "High error rate",
			Description: "More than 10% of calls failed in the last 15 minutes",
			Type:        models.AlertTypeErrorRate,
			Severity:    models.SeverityHigh,
			Conditions: models.RuleConditions{
				Metric:            models.MetricErrorRate,
				Operator:          models.OperatorGT,
				Threshold:         10,
				TimeWindowMinutes: 15,
				MinimumDataPoints: 10,
			},
			IsActive:        true,
			CooldownMinutes: 30,
		},
		{
			Name:        "Slow responses",
			Description: "Average latency above 5 seconds in the last 15 minutes",
			Type:        models.AlertTypeSlowResponse,
			Severity:    models.SeverityMedium,
			Conditions: models.RuleConditions{
				Metric:            models.MetricResponseTime,
				Operator:          models.OperatorGT,
				Threshold:         5000,
				TimeWindowMinutes: 15,
				Aggregation:       models.AggregationAvg,
				MinimumDataPoints: 5,
			},
			IsActive:        true,
			CooldownMinutes: 60,
		},
		{
			Name:        "Daily spend",
			Description: "Spend over the last 24 hours exceeded $100",
			Type:        models.AlertTypeCostThreshold,
			Severity:    models.SeverityHigh,
			Conditions: models.RuleConditions{
				Metric:            models.MetricCost,
				Operator:          models.OperatorGT,
				Threshold:         100,
				TimeWindowMinutes: 1440,
				Aggregation:       models.AggregationSum,
			},
			IsActive:        true,
			CooldownMinutes: 720,
		},
	}
}

// CreateDefaultRules installs DefaultRules for the user.
func (rm *RuleManager) CreateDefaultRules(ctx context.Context, userID string) ([]models.AlertRule, error) {
	rules := DefaultRules()
	if err := rm.createAll(ctx, userID, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ExportRules writes the user's rules as a JSON array.
func (rm *RuleManager) ExportRules(ctx context.Context, userID string, w io.Writer) error {
	rules, err := rm.ListRules(ctx, userID, nil)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rules); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return nil
}

// importedRule tells an omitted cooldown apart from an explicit zero.
type importedRule struct {
	models.AlertRule
	CooldownMinutes *int `json:"cooldown_minutes"`
}

// ImportRules reads a JSON array of rules and creates them for the user. The
// import is all-or-nothing: one invalid rule rejects the whole set. Rules
// without cooldown_minutes get the default cooldown.
func (rm *RuleManager) ImportRules(ctx context.Context, userID string, r io.Reader) ([]models.AlertRule, error) {
	var docs []importedRule
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, models.Invalid("", "failed to parse rules: %v", err)
	}
	rules := make([]models.AlertRule, len(docs))
	for i, doc := range docs {
		rules[i] = doc.AlertRule
		rules[i].CooldownMinutes = rm.DefaultCooldown()
		if doc.CooldownMinutes != nil {
			rules[i].CooldownMinutes = *doc.CooldownMinutes
		}
	}
	if err := rm.createAll(ctx, userID, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (rm *RuleManager) createAll(ctx context.Context, userID string, rules []models.AlertRule) error {
	for i := range rules {
		if err := rm.prepare(userID, &rules[i]); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	return rm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rules {
			if err := tx.Create(&rules[i]).Error; err != nil {
				return fmt.Errorf("failed to import rule '%s': %w", rules[i].Name, err)
			}
		}
		return nil
	})
}

// PreviewRule computes the current value of a rule's condition without
// raising an alert or touching cooldown state.
func (rm *RuleManager) PreviewRule(ctx context.Context, rule *models.AlertRule) (EvaluationResult, error) {
	if err := ValidateRule(rule); err != nil {
		return EvaluationResult{}, err
	}
	cond := rule.Conditions
	agg, err := rm.aggregator.Aggregate(ctx, monitor.Query{
		UserID:      rule.UserID,
		ProviderID:  rule.ProviderID,
		Metric:      cond.Metric,
		Aggregation: cond.Aggregation,
		Window:      cond.Window(),
		Until:       rm.now(),
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	enough := cond.MinimumDataPoints == 0 || agg.Samples >= int64(cond.MinimumDataPoints)
	return EvaluationResult{
		RuleID:       rule.ID,
		Triggered:    enough && cond.Operator.Compare(agg.Value, cond.Threshold),
		CurrentValue: agg.Value,
		Threshold:    cond.Threshold,
		Samples:      agg.Samples,
		InCooldown:   rule.InCooldown(rm.now()),
	}, nil
}
