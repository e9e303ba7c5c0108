package alert

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func costRule(user string) *models.AlertRule {
	return &models.AlertRule{
		UserID:   user,
		Name:     "Spend",
		Type:     models.AlertTypeCostThreshold,
		Severity: models.SeverityHigh,
		Conditions: models.RuleConditions{
			Metric:            models.MetricCost,
			Operator:          models.OperatorGT,
			Threshold:         100,
			TimeWindowMinutes: 60,
			Aggregation:       models.AggregationSum,
		},
		IsActive:        true,
		CooldownMinutes: 30,
	}
}

func storeRule(t *testing.T, db *gorm.DB, rule *models.AlertRule) *models.AlertRule {
	t.Helper()
	require.NoError(t, db.Create(rule).Error)
	return rule
}

type evalFixture struct {
	db        *gorm.DB
	clk       *clock
	agg       *fakeAggregator
	notifier  *recordingNotifier
	evaluator *RuleEvaluator
}

func newEvalFixture(t *testing.T) *evalFixture {
	db := setupDB(t)
	clk := newClock()
	agg := newFakeAggregator()
	notifier := &recordingNotifier{}
	am := NewAlertManager(db, WithClock(clk.Now), WithNotifier(notifier))
	return &evalFixture{
		db:        db,
		clk:       clk,
		agg:       agg,
		notifier:  notifier,
		evaluator: NewRuleEvaluator(db, agg, am, WithEvaluatorClock(clk.Now), WithConcurrency(2)),
	}
}

func TestEvaluateTriggersAndUpdatesRule(t *testing.T) {
	f := newEvalFixture(t)
	rule := storeRule(t, f.db, costRule("u1"))
	f.agg.set(models.MetricCost, 150, 12)

	res := f.evaluator.Evaluate(context.Background(), rule)
	require.NoError(t, res.Err)
	assert.True(t, res.Triggered)
	assert.True(t, res.AlertCreated)
	assert.Equal(t, 150.0, res.CurrentValue)
	require.NotNil(t, res.Alert)
	assert.Equal(t, `Alert rule "Spend" triggered`, res.Alert.Title)
	assert.Equal(t, "cost is $150.00 (threshold > $100.00) over the last 60 minutes", res.Alert.Message)
	require.NotNil(t, res.Alert.Metadata.Rule)
	assert.Equal(t, rule.ID, res.Alert.Metadata.Rule.RuleID)
	assert.Equal(t, 1, f.notifier.count())

	var stored models.AlertRule
	require.NoError(t, f.db.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, 1, stored.TriggerCount)
	require.NotNil(t, stored.LastTriggered)
	assert.True(t, stored.LastTriggered.Equal(baseTime))

	q := f.agg.queries[0]
	assert.Equal(t, time.Hour, q.Window)
	assert.Equal(t, baseTime, q.Until)
	assert.Equal(t, models.AggregationSum, q.Aggregation)
}

func TestEvaluateCooldownSkipsAggregation(t *testing.T) {
	f := newEvalFixture(t)
	rule := costRule("u1")
	last := baseTime.Add(-10 * time.Minute)
	rule.LastTriggered = &last
	storeRule(t, f.db, rule)
	f.agg.set(models.MetricCost, 500, 10)

	res := f.evaluator.Evaluate(context.Background(), rule)
	assert.True(t, res.InCooldown)
	assert.False(t, res.Triggered)
	assert.Zero(t, f.agg.queryCount())

	f.clk.Advance(25 * time.Minute)
	res = f.evaluator.Evaluate(context.Background(), rule)
	assert.False(t, res.InCooldown)
	assert.True(t, res.AlertCreated)
}

func TestEvaluateMinimumDataPoints(t *testing.T) {
	f := newEvalFixture(t)
	rule := costRule("u1")
	rule.Conditions.MinimumDataPoints = 20
	storeRule(t, f.db, rule)
	f.agg.set(models.MetricCost, 999, 19)

	res := f.evaluator.Evaluate(context.Background(), rule)
	assert.NoError(t, res.Err)
	assert.False(t, res.Triggered)
	assert.Equal(t, int64(19), res.Samples)
	assert.Zero(t, f.notifier.count())
}

func TestEvaluateConditionNotMet(t *testing.T) {
	f := newEvalFixture(t)
	rule := storeRule(t, f.db, costRule("u1"))
	f.agg.set(models.MetricCost, 100, 50)

	res := f.evaluator.Evaluate(context.Background(), rule)
	assert.False(t, res.Triggered, "gt is strict")
	assert.Nil(t, res.Alert)
}

func TestEvaluateDuplicateDoesNotTouchRule(t *testing.T) {
	f := newEvalFixture(t)
	rule := costRule("u1")
	rule.CooldownMinutes = 0
	storeRule(t, f.db, rule)
	f.agg.set(models.MetricCost, 150, 12)

	first := f.evaluator.Evaluate(context.Background(), rule)
	require.True(t, first.AlertCreated)

	f.clk.Advance(time.Minute)
	second := f.evaluator.Evaluate(context.Background(), rule)
	assert.True(t, second.Triggered)
	assert.False(t, second.AlertCreated)
	assert.Equal(t, first.Alert.ID, second.Alert.ID)

	var stored models.AlertRule
	require.NoError(t, f.db.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, 1, stored.TriggerCount)
	assert.True(t, stored.LastTriggered.Equal(baseTime))
}

func TestEvaluateAggregatorError(t *testing.T) {
	f := newEvalFixture(t)
	rule := storeRule(t, f.db, costRule("u1"))
	f.agg.err = errors.New("store down")

	res := f.evaluator.Evaluate(context.Background(), rule)
	assert.Error(t, res.Err)
	assert.False(t, res.Triggered)
}

func TestEvaluateAllKeepsRuleOrder(t *testing.T) {
	f := newEvalFixture(t)
	f.agg.set(models.MetricCost, 150, 12)

	var ids []string
	for i := 0; i < 6; i++ {
		rule := costRule(fmt.Sprintf("user-%d", i))
		rule.CreatedAt = baseTime.Add(time.Duration(i) * time.Second)
		storeRule(t, f.db, rule)
		ids = append(ids, rule.ID)
	}
	inactive := costRule("user-x")
	storeRule(t, f.db, inactive)
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)

	results, err := f.evaluator.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, ids[i], r.RuleID)
		assert.True(t, r.AlertCreated)
	}
	assert.Equal(t, 6, f.notifier.count())
}

func TestEvaluateUser(t *testing.T) {
	f := newEvalFixture(t)
	f.agg.set(models.MetricCost, 10, 12)
	storeRule(t, f.db, costRule("u1"))
	storeRule(t, f.db, costRule("u2"))

	results, err := f.evaluator.EvaluateUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Triggered)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "$12.50", formatValue(models.MetricCost, 12.5))
	assert.Equal(t, "12.35%", formatValue(models.MetricErrorRate, 12.346))
	assert.Equal(t, "99.00%", formatValue(models.MetricUptime, 99))
	assert.Equal(t, "1500ms", formatValue(models.MetricResponseTime, 1500.2))
	assert.Equal(t, "3.00 requests/min", formatValue(models.MetricRequestRate, 3))
}
