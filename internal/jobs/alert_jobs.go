package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/monitor"
)

const (
	EvaluationJobName = "alert-evaluation"
	HeuristicJobName  = "heuristic-alerts"
)

// AlertEvaluationJob evaluates every active rule.
type AlertEvaluationJob struct {
	*runner
	evaluator *alert.RuleEvaluator
}

func NewAlertEvaluationJob(evaluator *alert.RuleEvaluator, lock Lock) *AlertEvaluationJob {
	j := &AlertEvaluationJob{evaluator: evaluator}
	j.runner = newRunner(EvaluationJobName, lock, j.run)
	return j
}

func (j *AlertEvaluationJob) run(ctx context.Context, r *Result) error {
	results, err := j.evaluator.EvaluateAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		r.Processed++
		switch {
		case res.Err != nil:
			r.Failed++
			r.Errors = append(r.Errors, fmt.Sprintf("rule %s: %v", res.RuleID, res.Err))
		default:
			r.Succeeded++
		}
		if res.AlertCreated {
			r.AlertsCreated++
		}
	}
	return nil
}

// HeuristicAlertJob runs the built-in detectors for every user with recent
// API traffic or an active budget.
type HeuristicAlertJob struct {
	*runner
	detector   *alert.HeuristicDetector
	aggregator monitor.Aggregator
	budgets    monitor.BudgetStore
	lookback   time.Duration
}

func NewHeuristicAlertJob(detector *alert.HeuristicDetector, aggregator monitor.Aggregator, budgets monitor.BudgetStore, lock Lock) *HeuristicAlertJob {
	j := &HeuristicAlertJob{
		detector:   detector,
		aggregator: aggregator,
		budgets:    budgets,
		lookback:   time.Hour,
	}
	j.runner = newRunner(HeuristicJobName, lock, j.run)
	return j
}

func (j *HeuristicAlertJob) run(ctx context.Context, r *Result) error {
	users, err := j.users(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Processed++
		res, err := j.detector.GenerateHeuristicAlerts(ctx, userID)
		if err != nil {
			r.Failed++
			r.Errors = append(r.Errors, fmt.Sprintf("user %s: %v", userID, err))
			continue
		}
		for _, e := range res.Errors {
			r.Errors = append(r.Errors, fmt.Sprintf("user %s: %v", userID, e))
		}
		if len(res.Errors) > 0 {
			r.Failed++
		} else {
			r.Succeeded++
		}
		r.AlertsCreated += len(res.Alerts)
	}
	return nil
}

func (j *HeuristicAlertJob) users(ctx context.Context) ([]string, error) {
	active, err := j.aggregator.ActiveUsers(ctx, j.now().Add(-j.lookback))
	if err != nil {
		return nil, err
	}
	withBudgets, err := j.budgets.BudgetUsers(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(active)+len(withBudgets))
	var users []string
	for _, id := range append(active, withBudgets...) {
		if id != "" && !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}
