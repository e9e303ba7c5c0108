package notify

import (
	"context"
	"fmt"

	"github.com/nexusdash/nexus/internal/models"
	"gorm.io/gorm"
)

type PreferenceManager struct {
	db *gorm.DB
}

func NewPreferenceManager(db *gorm.DB) *PreferenceManager {
	return &PreferenceManager{db: db}
}

func (m *PreferenceManager) ListPreferences(ctx context.Context, userID string) ([]models.UserNotificationPreference, error) {
	var prefs []models.UserNotificationPreference
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("alert_type, severity, created_at").
		Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	return prefs, nil
}

// SetPreferences replaces the channel set used for one alert type and
// severity. An empty channelIDs clears the override so default routing
// applies again.
func (m *PreferenceManager) SetPreferences(ctx context.Context, userID string, alertType models.AlertType, severity models.Severity, channelIDs []string) ([]models.UserNotificationPreference, error) {
	if !alertType.IsValid() {
		return nil, models.Invalid("alert_type", "invalid alert type %q", alertType)
	}
	if !severity.IsValid() {
		return nil, models.Invalid("severity", "invalid severity %q", severity)
	}

	unique := make([]string, 0, len(channelIDs))
	seen := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	var prefs []models.UserNotificationPreference
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(unique) > 0 {
			var owned int64
			if err := tx.Model(&models.NotificationChannel{}).
				Where("user_id = ? AND id IN ?", userID, unique).
				Count(&owned).Error; err != nil {
				return fmt.Errorf("failed to check channels: %w", err)
			}
			if int(owned) != len(unique) {
				return models.Invalid("channel_ids", "unknown channel")
			}
		}

		if err := tx.Where("user_id = ? AND alert_type = ? AND severity = ?", userID, alertType, severity).
			Delete(&models.UserNotificationPreference{}).Error; err != nil {
			return fmt.Errorf("failed to clear preferences: %w", err)
		}

		for _, id := range unique {
			prefs = append(prefs, models.UserNotificationPreference{
				UserID:    userID,
				AlertType: alertType,
				Severity:  severity,
				ChannelID: id,
				Enabled:   true,
			})
		}
		if len(prefs) == 0 {
			return nil
		}
		if err := tx.Create(&prefs).Error; err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetEnabled toggles a single preference without removing it.
func (m *PreferenceManager) SetEnabled(ctx context.Context, userID, preferenceID string, enabled bool) error {
	res := m.db.WithContext(ctx).Model(&models.UserNotificationPreference{}).
		Where("id = ? AND user_id = ?", preferenceID, userID).
		Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update preference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *PreferenceManager) DeletePreference(ctx context.Context, userID, preferenceID string) error {
	res := m.db.WithContext(ctx).Where("id = ? AND user_id = ?", preferenceID, userID).
		Delete(&models.UserNotificationPreference{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete preference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
