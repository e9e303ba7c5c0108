package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"gorm.io/gorm"
)

// Query selects the API calls an aggregate is computed over.
type Query struct {
	UserID      string
	ProviderID  string // empty aggregates across every provider
	Metric      models.Metric
	Aggregation models.Aggregation
	Window      time.Duration
	Until       time.Time
}

type Aggregate struct {
	Value   float64
	Samples int64
}

// Aggregator turns raw call records into a single scalar per query.
type Aggregator interface {
	Aggregate(ctx context.Context, q Query) (Aggregate, error)
	ActiveProviders(ctx context.Context, userID string, since time.Time) ([]string, error)
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

type GormAggregator struct {
	db *gorm.DB
}

func NewGormAggregator(db *gorm.DB) *GormAggregator {
	return &GormAggregator{db: db}
}

type callStats struct {
	Samples    int64
	Errors     int64
	AvgLatency float64
	MinLatency float64
	MaxLatency float64
	SumCost    float64
	AvgCost    float64
	MinCost    float64
	MaxCost    float64
}

func (a *GormAggregator) Aggregate(ctx context.Context, q Query) (Aggregate, error) {
	if !q.Metric.IsValid() {
		return Aggregate{}, fmt.Errorf("unknown metric: %s", q.Metric)
	}
	if q.Window <= 0 {
		return Aggregate{}, fmt.Errorf("window must be positive")
	}
	until := q.Until
	if until.IsZero() {
		until = time.Now().UTC()
	}
	since := until.Add(-q.Window)

	query := a.db.WithContext(ctx).Model(&models.APICall{}).
		Select(`COUNT(*) AS samples,
			COALESCE(SUM(CASE WHEN is_error THEN 1 ELSE 0 END), 0) AS errors,
			COALESCE(AVG(latency_ms), 0) AS avg_latency,
			COALESCE(MIN(latency_ms), 0) AS min_latency,
			COALESCE(MAX(latency_ms), 0) AS max_latency,
			COALESCE(SUM(cost), 0) AS sum_cost,
			COALESCE(AVG(cost), 0) AS avg_cost,
			COALESCE(MIN(cost), 0) AS min_cost,
			COALESCE(MAX(cost), 0) AS max_cost`).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", q.UserID, since, until)
	if q.ProviderID != "" {
		query = query.Where("provider_id = ?", q.ProviderID)
	}

	var stats callStats
	if err := query.Scan(&stats).Error; err != nil {
		return Aggregate{}, fmt.Errorf("failed to aggregate %s: %w", q.Metric, err)
	}

	return Aggregate{Value: computeMetric(q, stats), Samples: stats.Samples}, nil
}

// computeMetric normalizes the raw sums into the metric's natural unit so it
// compares directly against a rule threshold.
func computeMetric(q Query, s callStats) float64 {
	if q.Aggregation == models.AggregationCount {
		return float64(s.Samples)
	}

	switch q.Metric {
	case models.MetricErrorRate:
		if s.Samples == 0 {
			return 0
		}
		return float64(s.Errors) / float64(s.Samples) * 100
	case models.MetricUptime:
		if s.Samples == 0 {
			return 100
		}
		return 100 - float64(s.Errors)/float64(s.Samples)*100
	case models.MetricResponseTime:
		switch q.Aggregation {
		case models.AggregationMin:
			return s.MinLatency
		case models.AggregationMax:
			return s.MaxLatency
		default:
			return s.AvgLatency
		}
	case models.MetricCost:
		switch q.Aggregation {
		case models.AggregationAvg:
			return s.AvgCost
		case models.AggregationMin:
			return s.MinCost
		case models.AggregationMax:
			return s.MaxCost
		default:
			return s.SumCost
		}
	case models.MetricRequestRate:
		return float64(s.Samples) / q.Window.Minutes()
	default:
		return 0
	}
}

func (a *GormAggregator) ActiveProviders(ctx context.Context, userID string, since time.Time) ([]string, error) {
	var providers []string
	err := a.db.WithContext(ctx).Model(&models.APICall{}).
		Distinct().
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("provider_id").
		Pluck("provider_id", &providers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active providers: %w", err)
	}
	return providers, nil
}

func (a *GormAggregator) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	var users []string
	err := a.db.WithContext(ctx).Model(&models.APICall{}).
		Distinct().
		Where("timestamp >= ?", since).
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}
