package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexusdash/nexus/internal/metrics"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultDedupWindow is how long an open alert suppresses duplicates for the
// same user, provider and type.
const DefaultDedupWindow = 24 * time.Hour

// Notifier fans a freshly created alert out to the user's channels.
type Notifier interface {
	Enqueue(ctx context.Context, alert *models.Alert) error
}

type AlertManager struct {
	db          *gorm.DB
	notifier    Notifier
	dedupWindow time.Duration
	now         func() time.Time
	mutex       sync.Mutex
}

type Option func(*AlertManager)

func WithNotifier(n Notifier) Option {
	return func(am *AlertManager) { am.notifier = n }
}

func WithDedupWindow(d time.Duration) Option {
	return func(am *AlertManager) {
		if d > 0 {
			am.dedupWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(am *AlertManager) { am.now = now }
}

func NewAlertManager(db *gorm.DB, opts ...Option) *AlertManager {
	am := &AlertManager{
		db:          db,
		dedupWindow: DefaultDedupWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(am)
	}
	return am
}

type CreateAlertInput struct {
	UserID     string
	ProviderID string
	RuleID     string
	Type       models.AlertType
	Severity   models.Severity
	Title      string
	Message    string
	Metadata   models.AlertMetadata
}

func (in CreateAlertInput) validate() error {
	if in.UserID == "" {
		return models.Invalid("user_id", "is required")
	}
	if !in.Type.IsValid() {
		return models.Invalid("type", "invalid alert type %q", in.Type)
	}
	if !in.Severity.IsValid() {
		return models.Invalid("severity", "invalid severity %q", in.Severity)
	}
	if in.Title == "" {
		return models.Invalid("title", "is required")
	}
	return nil
}

// CreateAlert stores a new alert unless an unresolved alert for the same
// user, provider and type was created inside the dedup window. In that case
// the existing alert is returned with created=false.
func (am *AlertManager) CreateAlert(ctx context.Context, in CreateAlertInput) (*models.Alert, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	result, created, err := am.insertUnlessDuplicate(ctx, in)
	if err != nil {
		return nil, false, err
	}

	fields := logrus.Fields{
		"alert_id": result.ID,
		"user_id":  in.UserID,
		"provider": in.ProviderID,
		"type":     in.Type,
	}
	if !created {
		metrics.AlertsDeduplicated.WithLabelValues(string(in.Type)).Inc()
		logrus.WithFields(fields).Debug("Alert suppressed by open duplicate")
		return result, false, nil
	}

	metrics.AlertsCreated.WithLabelValues(string(in.Metadata.Source), string(in.Type), string(in.Severity)).Inc()
	logrus.WithFields(fields).WithField("severity", in.Severity).Info("Alert created")

	if am.notifier != nil {
		if err := am.notifier.Enqueue(ctx, result); err != nil {
			logrus.WithFields(fields).WithError(err).Error("Failed to enqueue alert notifications")
		}
	}
	return result, true, nil
}

// insertUnlessDuplicate runs the dedup check and insert under the manager's
// mutex. Notification fan-out happens after the lock is released.
func (am *AlertManager) insertUnlessDuplicate(ctx context.Context, in CreateAlertInput) (*models.Alert, bool, error) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	now := am.now()
	var (
		result  *models.Alert
		created bool
	)
	err := am.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findOpenDuplicate(tx, in.UserID, in.ProviderID, in.Type, now.Add(-am.dedupWindow))
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		alert := &models.Alert{
			UserID:     in.UserID,
			ProviderID: in.ProviderID,
			Type:       in.Type,
			Severity:   in.Severity,
			Title:      in.Title,
			Message:    in.Message,
			Metadata:   in.Metadata,
		}
		alert.CreatedAt = now
		alert.UpdatedAt = now
		if in.RuleID != "" {
			ruleID := in.RuleID
			alert.RuleID = &ruleID
		}
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("failed to save alert: %w", err)
		}
		result = alert
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func findOpenDuplicate(tx *gorm.DB, userID, providerID string, alertType models.AlertType, since time.Time) (*models.Alert, error) {
	var existing models.Alert
	err := tx.Where("user_id = ? AND provider_id = ? AND type = ? AND is_resolved = ? AND created_at >= ?",
		userID, providerID, alertType, false, since).
		Order("created_at DESC").
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate alert: %w", err)
	}
	return &existing, nil
}
