package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexusdash/nexus/internal/database"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// clock is a settable time source shared by the components under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: baseTime} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeAggregator answers every query for a metric with a fixed aggregate.
type fakeAggregator struct {
	mu        sync.Mutex
	values    map[models.Metric]monitor.Aggregate
	providers []string
	users     []string
	queries   []monitor.Query
	err       error
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{values: make(map[models.Metric]monitor.Aggregate)}
}

func (f *fakeAggregator) set(metric models.Metric, value float64, samples int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[metric] = monitor.Aggregate{Value: value, Samples: samples}
}

func (f *fakeAggregator) Aggregate(_ context.Context, q monitor.Query) (monitor.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return monitor.Aggregate{}, f.err
	}
	return f.values[q.Metric], nil
}

func (f *fakeAggregator) ActiveProviders(context.Context, string, time.Time) ([]string, error) {
	return f.providers, nil
}

func (f *fakeAggregator) ActiveUsers(context.Context, time.Time) ([]string, error) {
	return f.users, nil
}

func (f *fakeAggregator) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeBudgets struct {
	budgets []models.Budget
	spend   map[string]float64
}

func (f *fakeBudgets) ActiveBudgets(_ context.Context, userID string) ([]models.Budget, error) {
	var out []models.Budget
	for _, b := range f.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBudgets) BudgetUsers(context.Context) ([]string, error) {
	var users []string
	for _, b := range f.budgets {
		users = append(users, b.UserID)
	}
	return users, nil
}

func (f *fakeBudgets) PeriodSpend(_ context.Context, b models.Budget, _ time.Time) (float64, error) {
	return f.spend[b.ID], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (n *recordingNotifier) Enqueue(_ context.Context, a *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
