package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/sirupsen/logrus"
)

const (
	heuristicWindow = time.Hour

	errorRateThreshold  = 10.0
	errorRateMinSamples = 10
	errorRateHigh       = 15.0
	errorRateCritical   = 25.0

	latencyThresholdMs = 5000.0
	latencyMinSamples  = 5
	latencyHighMs      = 10000.0
	latencyCriticalMs  = 15000.0
)

// HeuristicDetector raises built-in alerts that need no user-defined rule:
// elevated error rates, slow providers and budgets nearing their limit.
type HeuristicDetector struct {
	aggregator   monitor.Aggregator
	budgets      monitor.BudgetStore
	alertManager *AlertManager
	now          func() time.Time
}

func NewHeuristicDetector(aggregator monitor.Aggregator, budgets monitor.BudgetStore, alertManager *AlertManager) *HeuristicDetector {
	return &HeuristicDetector{
		aggregator:   aggregator,
		budgets:      budgets,
		alertManager: alertManager,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the detector's time source.
func (d *HeuristicDetector) SetClock(now func() time.Time) {
	d.now = now
}

// HeuristicResult lists the alerts created for one user. Alerts suppressed
// by deduplication are not included.
type HeuristicResult struct {
	UserID string
	Alerts []*models.Alert
	Errors []error
}

func (d *HeuristicDetector) GenerateHeuristicAlerts(ctx context.Context, userID string) (HeuristicResult, error) {
	now := d.now()
	result := HeuristicResult{UserID: userID}

	providers, err := d.aggregator.ActiveProviders(ctx, userID, now.Add(-heuristicWindow))
	if err != nil {
		return result, err
	}

	for _, providerID := range providers {
		for _, detect := range []func(context.Context, string, string, time.Time) (*CreateAlertInput, error){
			d.detectErrorRate,
			d.detectLatency,
		} {
			in, err := detect(ctx, userID, providerID, now)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			d.raise(ctx, &result, in)
		}
	}

	budgets, err := d.budgets.ActiveBudgets(ctx, userID)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result, nil
	}
	for _, budget := range budgets {
		in, err := d.detectBudget(ctx, budget, now)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		d.raise(ctx, &result, in)
	}

	return result, nil
}

func (d *HeuristicDetector) raise(ctx context.Context, result *HeuristicResult, in *CreateAlertInput) {
	if in == nil {
		return
	}
	alert, created, err := d.alertManager.CreateAlert(ctx, *in)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return
	}
	if created {
		result.Alerts = append(result.Alerts, alert)
	}
}

func (d *HeuristicDetector) detectErrorRate(ctx context.Context, userID, providerID string, now time.Time) (*CreateAlertInput, error) {
	agg, err := d.aggregator.Aggregate(ctx, monitor.Query{
		UserID:     userID,
		ProviderID: providerID,
		Metric:     models.MetricErrorRate,
		Window:     heuristicWindow,
		Until:      now,
	})
	if err != nil {
		return nil, err
	}
	if agg.Samples < errorRateMinSamples || agg.Value <= errorRateThreshold {
		return nil, nil
	}

	severity := models.SeverityMedium
	switch {
	case agg.Value > errorRateCritical:
		severity = models.SeverityCritical
	case agg.Value > errorRateHigh:
		severity = models.SeverityHigh
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"provider":   providerID,
		"error_rate": agg.Value,
	}).Debug("Elevated error rate detected")

	return &CreateAlertInput{
		UserID:     userID,
		ProviderID: providerID,
		Type:       models.AlertTypeErrorRate,
		Severity:   severity,
		Title:      fmt.Sprintf("High error rate for %s", providerID),
		Message: fmt.Sprintf("%.2f%% of %d calls to %s failed in the last hour",
			agg.Value, agg.Samples, providerID),
		Metadata: models.AlertMetadata{
			Source: models.AlertSourceHeuristic,
			ErrorRate: &models.ErrorRateDetails{
				ErrorRate:     agg.Value,
				Samples:       agg.Samples,
				WindowMinutes: int(heuristicWindow.Minutes()),
			},
		},
	}, nil
}

func (d *HeuristicDetector) detectLatency(ctx context.Context, userID, providerID string, now time.Time) (*CreateAlertInput, error) {
	agg, err := d.aggregator.Aggregate(ctx, monitor.Query{
		UserID:      userID,
		ProviderID:  providerID,
		Metric:      models.MetricResponseTime,
		Aggregation: models.AggregationAvg,
		Window:      heuristicWindow,
		Until:       now,
	})
	if err != nil {
		return nil, err
	}
	if agg.Samples < latencyMinSamples || agg.Value <= latencyThresholdMs {
		return nil, nil
	}

	severity := models.SeverityMedium
	switch {
	case agg.Value > latencyCriticalMs:
		severity = models.SeverityCritical
	case agg.Value > latencyHighMs:
		severity = models.SeverityHigh
	}

	return &CreateAlertInput{
		UserID:     userID,
		ProviderID: providerID,
		Type:       models.AlertTypeSlowResponse,
		Severity:   severity,
		Title:      fmt.Sprintf("Slow responses from %s", providerID),
		Message: fmt.Sprintf("Average response time of %s was %.0fms over %d calls in the last hour",
			providerID, agg.Value, agg.Samples),
		Metadata: models.AlertMetadata{
			Source: models.AlertSourceHeuristic,
			Latency: &models.LatencyDetails{
				AverageMs:     agg.Value,
				Samples:       agg.Samples,
				WindowMinutes: int(heuristicWindow.Minutes()),
			},
		},
	}, nil
}

func (d *HeuristicDetector) detectBudget(ctx context.Context, budget models.Budget, now time.Time) (*CreateAlertInput, error) {
	if budget.Amount <= 0 {
		return nil, nil
	}
	spent, err := d.budgets.PeriodSpend(ctx, budget, now)
	if err != nil {
		return nil, err
	}
	utilization := spent / budget.Amount * 100
	if utilization < budget.Threshold() {
		return nil, nil
	}

	severity := models.SeverityMedium
	switch {
	case utilization >= 100:
		severity = models.SeverityCritical
	case utilization >= 90:
		severity = models.SeverityHigh
	}

	name := budget.Name
	if name == "" {
		name = string(budget.Period) + " budget"
	}

	return &CreateAlertInput{
		UserID:     budget.UserID,
		ProviderID: budget.ProviderID,
		Type:       models.AlertTypeBudgetExceeded,
		Severity:   severity,
		Title:      fmt.Sprintf("Budget %q at %.0f%%", name, utilization),
		Message: fmt.Sprintf("Spent $%.2f of $%.2f (%.1f%%) in the current %s period",
			spent, budget.Amount, utilization, budget.Period),
		Metadata: models.AlertMetadata{
			Source: models.AlertSourceHeuristic,
			Budget: &models.BudgetDetails{
				BudgetID:       budget.ID,
				BudgetName:     name,
				Amount:         budget.Amount,
				Spent:          spent,
				Utilization:    utilization,
				AlertThreshold: budget.Threshold(),
				Period:         string(budget.Period),
			},
		},
	}, nil
}
