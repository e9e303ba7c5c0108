package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexusdash/nexus/internal/database"
	"github.com/nexusdash/nexus/internal/models"
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

type deliverCall struct {
	AlertID   string
	ChannelID string
}

// fakeDeliverer answers with a per-channel result, falling back to success.
type fakeDeliverer struct {
	mu      sync.Mutex
	results map[string]DeliveryResult
	calls   []deliverCall
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{results: make(map[string]DeliveryResult)}
}

func (f *fakeDeliverer) Deliver(ctx context.Context, alert *models.Alert, channel *models.NotificationChannel) DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliverCall{AlertID: alert.ID, ChannelID: channel.ID})
	if r, ok := f.results[channel.ID]; ok {
		return r
	}
	return DeliveryResult{Success: true, StatusCode: 200, Response: "ok"}
}

func (f *fakeDeliverer) set(channelID string, r DeliveryResult) {
	f.mu.Lock()
	f.results[channelID] = r
	f.mu.Unlock()
}

func (f *fakeDeliverer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func createChannel(t *testing.T, db *gorm.DB, ch models.NotificationChannel) *models.NotificationChannel {
	t.Helper()
	require.NoError(t, db.Create(&ch).Error)
	return &ch
}

func createAlert(t *testing.T, db *gorm.DB, userID string, severity models.Severity) *models.Alert {
	t.Helper()
	a := &models.Alert{
		UserID:     userID,
		ProviderID: "openai",
		Type:       models.AlertTypeErrorRate,
		Severity:   severity,
		Title:      "Error rate high",
		Message:    "error rate is 25.00%",
		Metadata:   models.AlertMetadata{Source: models.AlertSourceHeuristic},
	}
	a.CreatedAt = baseTime
	require.NoError(t, db.Create(a).Error)
	return a
}

func emailChannel(user string) models.NotificationChannel {
	return models.NotificationChannel{
		UserID:     user,
		Name:       "ops mail",
		Type:       models.ChannelEmail,
		Config:     models.ChannelConfig{Email: &models.EmailChannelConfig{To: []string{"ops@example.com"}}},
		IsActive:   true,
		IsVerified: true,
	}
}

func webhookChannel(user, url string) models.NotificationChannel {
	return models.NotificationChannel{
		UserID:     user,
		Name:       "hook",
		Type:       models.ChannelWebhook,
		Config:     models.ChannelConfig{Webhook: &models.WebhookChannelConfig{URL: url}},
		IsActive:   true,
		IsVerified: true,
	}
}

func inAppChannel(user string) models.NotificationChannel {
	return models.NotificationChannel{
		UserID:     user,
		Name:       "dashboard",
		Type:       models.ChannelInApp,
		IsActive:   true,
		IsVerified: true,
	}
}
