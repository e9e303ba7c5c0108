package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ChannelManager struct {
	db         *gorm.DB
	dispatcher Deliverer
	now        func() time.Time
}

func NewChannelManager(db *gorm.DB, dispatcher Deliverer) *ChannelManager {
	return &ChannelManager{
		db:         db,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func validateChannel(ch *models.NotificationChannel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.Name == "" {
		return models.Invalid("name", "is required")
	}
	if !ch.Type.IsValid() {
		return models.Invalid("type", "invalid channel type %q", ch.Type)
	}
	if err := ch.Config.Validate(ch.Type); err != nil {
		return models.Invalid("config", "%v", err)
	}
	return nil
}

// CreateChannel stores a new channel. In-app channels are verified on
// creation; every other type needs a successful VerifyChannel first.
func (m *ChannelManager) CreateChannel(ctx context.Context, userID string, ch *models.NotificationChannel) error {
	ch.ID = ""
	ch.UserID = userID
	ch.FailureCount = 0
	ch.LastUsed = nil
	ch.IsVerified = ch.Type == models.ChannelInApp
	if err := validateChannel(ch); err != nil {
		return err
	}
	if err := m.db.WithContext(ctx).Create(ch).Error; err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"channel_id": ch.ID,
		"user_id":    userID,
		"type":       ch.Type,
	}).Info("Notification channel created")
	return nil
}

// UpdateChannel replaces name, config and active flag. Changing the
// destination clears verification. A webhook secret sent back as
// models.RedactedSecret keeps the stored secret.
func (m *ChannelManager) UpdateChannel(ctx context.Context, userID, channelID string, update *models.NotificationChannel) (*models.NotificationChannel, error) {
	existing, err := m.GetChannel(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	if update.Type != "" && update.Type != existing.Type {
		return nil, models.Invalid("type", "channel type cannot be changed")
	}

	config := update.Config.WithSecretFrom(existing.Config)
	existing.Name = update.Name
	existing.IsActive = update.IsActive
	if configChanged(existing.Config, config) {
		existing.IsVerified = existing.Type == models.ChannelInApp
		existing.FailureCount = 0
	}
	existing.Config = config
	if err := validateChannel(existing); err != nil {
		return nil, err
	}
	if err := m.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update channel: %w", err)
	}
	return existing, nil
}

func configChanged(a, b models.ChannelConfig) bool {
	return fmt.Sprintf("%+v", deref(a)) != fmt.Sprintf("%+v", deref(b))
}

func deref(c models.ChannelConfig) []interface{} {
	var out []interface{}
	if c.Email != nil {
		out = append(out, *c.Email)
	}
	if c.Webhook != nil {
		out = append(out, *c.Webhook)
	}
	if c.Slack != nil {
		out = append(out, *c.Slack)
	}
	if c.Discord != nil {
		out = append(out, *c.Discord)
	}
	if c.Teams != nil {
		out = append(out, *c.Teams)
	}
	return out
}

// DeleteChannel removes the channel with its preferences and any deliveries
// still waiting on it.
func (m *ChannelManager) DeleteChannel(ctx context.Context, userID, channelID string) error {
	if _, err := m.GetChannel(ctx, userID, channelID); err != nil {
		return err
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", channelID).Delete(&models.UserNotificationPreference{}).Error; err != nil {
			return fmt.Errorf("failed to delete preferences: %w", err)
		}
		if err := tx.Where("channel_id = ?", channelID).Delete(&models.AlertDelivery{}).Error; err != nil {
			return fmt.Errorf("failed to delete deliveries: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", channelID, userID).Delete(&models.NotificationChannel{}).Error; err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		return nil
	})
}

func (m *ChannelManager) GetChannel(ctx context.Context, userID, channelID string) (*models.NotificationChannel, error) {
	var ch models.NotificationChannel
	err := m.db.WithContext(ctx).Where("id = ? AND user_id = ?", channelID, userID).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}
	return &ch, nil
}

func (m *ChannelManager) ListChannels(ctx context.Context, userID string) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// TestChannel sends a synthetic alert through the channel without touching
// its verification or health state.
func (m *ChannelManager) TestChannel(ctx context.Context, userID, channelID string) (DeliveryResult, error) {
	ch, err := m.GetChannel(ctx, userID, channelID)
	if err != nil {
		return DeliveryResult{}, err
	}
	return m.dispatcher.Deliver(ctx, m.testAlert(ch), ch), nil
}

// VerifyChannel sends a test alert and marks the channel verified when it
// goes through.
func (m *ChannelManager) VerifyChannel(ctx context.Context, userID, channelID string) (*models.NotificationChannel, DeliveryResult, error) {
	ch, err := m.GetChannel(ctx, userID, channelID)
	if err != nil {
		return nil, DeliveryResult{}, err
	}

	result := m.dispatcher.Deliver(ctx, m.testAlert(ch), ch)
	if !result.Success {
		return ch, result, nil
	}

	now := m.now()
	if err := m.db.WithContext(ctx).Model(ch).Updates(map[string]interface{}{
		"is_verified":   true,
		"failure_count": 0,
		"last_used":     now,
	}).Error; err != nil {
		return nil, result, fmt.Errorf("failed to mark channel verified: %w", err)
	}
	ch.IsVerified = true
	ch.FailureCount = 0
	ch.LastUsed = &now
	return ch, result, nil
}

// ResetFailures clears the consecutive failure count so routing resumes.
func (m *ChannelManager) ResetFailures(ctx context.Context, userID, channelID string) (*models.NotificationChannel, error) {
	ch, err := m.GetChannel(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	if err := m.db.WithContext(ctx).Model(ch).Update("failure_count", 0).Error; err != nil {
		return nil, fmt.Errorf("failed to reset channel failures: %w", err)
	}
	ch.FailureCount = 0
	return ch, nil
}

func (m *ChannelManager) testAlert(ch *models.NotificationChannel) *models.Alert {
	alert := &models.Alert{
		UserID:   ch.UserID,
		Type:     models.AlertTypeErrorRate,
		Severity: models.SeverityLow,
		Title:    "Test notification",
		Message:  fmt.Sprintf("This is a test notification for channel %q.", ch.Name),
		Metadata: models.AlertMetadata{Source: models.AlertSourceManual},
	}
	alert.ID = "test"
	alert.CreatedAt = m.now()
	return alert
}
