package notify

import (
	"context"
	"fmt"

	"github.com/nexusdash/nexus/internal/models"
	"gorm.io/gorm"
)

// Router decides which of a user's channels receive an alert.
type Router struct {
	db               *gorm.DB
	failureThreshold int
}

func NewRouter(db *gorm.DB, failureThreshold int) *Router {
	if failureThreshold <= 0 {
		failureThreshold = models.DefaultFailureThreshold
	}
	return &Router{db: db, failureThreshold: failureThreshold}
}

// ResolveChannels applies the user's enabled preferences for the alert type
// and severity when any exist. Without preferences, urgent alerts go to every
// usable channel and the rest to email and in-app only. Channels that are
// inactive, unverified or past the failure threshold are never returned.
func (r *Router) ResolveChannels(ctx context.Context, userID string, alertType models.AlertType, severity models.Severity) ([]models.NotificationChannel, error) {
	var preferred []string
	if err := r.db.WithContext(ctx).Model(&models.UserNotificationPreference{}).
		Where("user_id = ? AND alert_type = ? AND severity = ? AND enabled = ?", userID, alertType, severity, true).
		Pluck("channel_id", &preferred).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND is_verified = ? AND failure_count < ?",
			userID, true, true, r.failureThreshold)

	switch {
	case len(preferred) > 0:
		query = query.Where("id IN ?", preferred)
	case !severity.Urgent():
		query = query.Where("type IN ?", []models.ChannelType{models.ChannelEmail, models.ChannelInApp})
	}

	var channels []models.NotificationChannel
	if err := query.Order("created_at").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification channels: %w", err)
	}
	return channels, nil
}
