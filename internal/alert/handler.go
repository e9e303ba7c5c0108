package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultRetentionDays is how long resolved alerts are kept.
const DefaultRetentionDays = 30

// AlertHandler covers user-driven alert state transitions: reading,
// resolving and listing. Every call is scoped to the owning user.
type AlertHandler struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAlertHandler(db *gorm.DB) *AlertHandler {
	return &AlertHandler{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the handler's time source.
func (h *AlertHandler) SetClock(now func() time.Time) {
	h.now = now
}

type ListFilter struct {
	UnreadOnly     bool
	UnresolvedOnly bool
	Type           models.AlertType
	Severity       models.Severity
	ProviderID     string
	Limit          int
	Offset         int
}

func (h *AlertHandler) ListAlerts(ctx context.Context, userID string, filter ListFilter) ([]models.Alert, error) {
	query := h.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if filter.UnresolvedOnly {
		query = query.Where("is_resolved = ?", false)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (h *AlertHandler) GetAlert(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	var alert models.Alert
	err := h.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, userID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find alert: %w", err)
	}
	return &alert, nil
}

func (h *AlertHandler) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := h.db.WithContext(ctx).Model(&models.Alert{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

func (h *AlertHandler) MarkAsRead(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	alert, err := h.GetAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsRead {
		return alert, nil
	}
	if err := h.db.WithContext(ctx).Model(alert).Update("is_read", true).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	alert.IsRead = true
	return alert, nil
}

// MarkManyAsRead marks the given alerts read, or every unread alert of the
// user when alertIDs is empty. Ids owned by other users are ignored.
func (h *AlertHandler) MarkManyAsRead(ctx context.Context, userID string, alertIDs []string) (int64, error) {
	query := h.db.WithContext(ctx).Model(&models.Alert{}).Where("user_id = ? AND is_read = ?", userID, false)
	if len(alertIDs) > 0 {
		query = query.Where("id IN ?", alertIDs)
	}
	res := query.Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (h *AlertHandler) ResolveAlert(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	alert, err := h.GetAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsResolved {
		return alert, nil
	}

	now := h.now()
	if err := h.db.WithContext(ctx).Model(alert).Updates(map[string]interface{}{
		"is_resolved": true,
		"resolved_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	alert.IsResolved = true
	alert.ResolvedAt = &now
	return alert, nil
}

// ResolveMany resolves the given alerts, or every open alert of the user
// when alertIDs is empty.
func (h *AlertHandler) ResolveMany(ctx context.Context, userID string, alertIDs []string) (int64, error) {
	query := h.db.WithContext(ctx).Model(&models.Alert{}).Where("user_id = ? AND is_resolved = ?", userID, false)
	if len(alertIDs) > 0 {
		query = query.Where("id IN ?", alertIDs)
	}
	res := query.Updates(map[string]interface{}{
		"is_resolved": true,
		"resolved_at": h.now(),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Deliveries lists the delivery records of one alert.
func (h *AlertHandler) Deliveries(ctx context.Context, userID, alertID string) ([]models.AlertDelivery, error) {
	if _, err := h.GetAlert(ctx, userID, alertID); err != nil {
		return nil, err
	}
	var deliveries []models.AlertDelivery
	if err := h.db.WithContext(ctx).Where("alert_id = ?", alertID).
		Order("created_at").Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}

// CleanupOldAlerts deletes resolved alerts whose resolution is older than
// retentionDays, along with their delivery records.
func (h *AlertHandler) CleanupOldAlerts(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := h.now().AddDate(0, 0, -retentionDays)

	var deleted int64
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.Alert{}).Select("id").
			Where("is_resolved = ? AND resolved_at IS NOT NULL AND resolved_at < ?", true, cutoff)

		if err := tx.Where("alert_id IN (?)", expired).Delete(&models.AlertDelivery{}).Error; err != nil {
			return fmt.Errorf("failed to delete deliveries: %w", err)
		}

		res := tx.Where("is_resolved = ? AND resolved_at IS NOT NULL AND resolved_at < ?", true, cutoff).
			Delete(&models.Alert{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete alerts: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"deleted":        deleted,
		"retention_days": retentionDays,
	}).Info("Old alerts cleaned up")
	return deleted, nil
}
