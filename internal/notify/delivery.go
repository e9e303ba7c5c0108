package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexusdash/nexus/internal/metrics"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultBatchSize = 100

	// claimLease hides a delivery from other workers while one attempt is in
	// flight. An attempt interrupted by a crash is picked up again afterwards.
	claimLease = 2 * time.Minute
)

// ErrDeliveryClaimed is returned when another worker already holds or has
// finished the delivery.
var ErrDeliveryClaimed = errors.New("delivery already claimed")

// Deliverer sends an alert to one channel.
type Deliverer interface {
	Deliver(ctx context.Context, alert *models.Alert, channel *models.NotificationChannel) DeliveryResult
}

type DeliveryService struct {
	db          *gorm.DB
	router      *Router
	dispatcher  Deliverer
	maxAttempts int
	batchSize   int
	immediate   bool
	now         func() time.Time
}

type DeliveryOptions struct {
	MaxAttempts       int
	BatchSize         int
	ImmediateDispatch bool
	Clock             func() time.Time
}

func NewDeliveryService(db *gorm.DB, router *Router, dispatcher Deliverer, opts DeliveryOptions) *DeliveryService {
	s := &DeliveryService{
		db:          db,
		router:      router,
		dispatcher:  dispatcher,
		maxAttempts: opts.MaxAttempts,
		batchSize:   opts.BatchSize,
		immediate:   opts.ImmediateDispatch,
		now:         opts.Clock,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = models.DefaultMaxAttempts
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Enqueue creates one pending delivery per routed channel. With immediate
// dispatch enabled the first attempt is made right away; failures are left
// for the retry scheduler.
func (s *DeliveryService) Enqueue(ctx context.Context, alert *models.Alert) error {
	channels, err := s.router.ResolveChannels(ctx, alert.UserID, alert.Type, alert.Severity)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		logrus.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"user_id":  alert.UserID,
		}).Debug("No notification channels for alert")
		return nil
	}

	now := s.now()
	deliveries := make([]models.AlertDelivery, len(channels))
	for i := range channels {
		deliveries[i] = models.AlertDelivery{
			AlertID:     alert.ID,
			ChannelID:   channels[i].ID,
			Status:      models.DeliveryPending,
			Attempt:     1,
			MaxAttempts: s.maxAttempts,
		}
		deliveries[i].CreatedAt = now
		deliveries[i].UpdatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(&deliveries).Error; err != nil {
		return fmt.Errorf("failed to create deliveries: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"channels": len(channels),
	}).Info("Alert deliveries enqueued")

	if !s.immediate {
		return nil
	}
	for i := range deliveries {
		deliveries[i].Alert = alert
		deliveries[i].Channel = &channels[i]
		if _, err := s.Attempt(ctx, &deliveries[i]); err != nil && !errors.Is(err, ErrDeliveryClaimed) {
			logrus.WithFields(logrus.Fields{
				"delivery_id": deliveries[i].ID,
			}).WithError(err).Warn("Immediate delivery attempt failed")
		}
	}
	return nil
}

// Attempt makes one send attempt for a delivery and persists the resulting
// transition together with the channel's health counters.
func (s *DeliveryService) Attempt(ctx context.Context, delivery *models.AlertDelivery) (models.AlertDelivery, error) {
	if delivery.Status.Terminal() {
		return *delivery, ErrDeliveryClaimed
	}
	if err := s.claim(ctx, delivery); err != nil {
		return *delivery, err
	}
	if err := s.loadRelations(ctx, delivery); err != nil {
		return *delivery, err
	}

	var result DeliveryResult
	if delivery.Alert == nil || delivery.Channel == nil {
		result = permanentFailure(fmt.Errorf("alert or channel no longer exists"))
	} else {
		result = s.dispatcher.Deliver(ctx, delivery.Alert, delivery.Channel)
	}

	now := s.now()
	next := Transition(*delivery, result, now)
	if err := s.persist(ctx, *delivery, next, result, now); err != nil {
		return *delivery, err
	}

	channelType := "unknown"
	if delivery.Channel != nil {
		channelType = string(delivery.Channel.Type)
	}
	metrics.DeliveryAttempts.WithLabelValues(channelType, string(next.Status)).Inc()

	entry := logrus.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"alert_id":    delivery.AlertID,
		"channel_id":  delivery.ChannelID,
		"attempt":     delivery.Attempt,
		"status":      next.Status,
	})
	if result.Success {
		entry.Info("Alert delivered")
	} else {
		entry.WithField("error", result.Error).Warn("Alert delivery failed")
	}

	next.Alert, next.Channel = delivery.Alert, delivery.Channel
	*delivery = next
	return next, nil
}

// claim takes a short lease on the delivery so a concurrent worker skips it.
func (s *DeliveryService) claim(ctx context.Context, d *models.AlertDelivery) error {
	now := s.now()
	lease := now.Add(claimLease)
	res := s.db.WithContext(ctx).Model(&models.AlertDelivery{}).
		Where("id = ? AND status = ? AND attempt = ?", d.ID, d.Status, d.Attempt).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
		Update("next_retry_at", lease)
	if res.Error != nil {
		return fmt.Errorf("failed to claim delivery: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeliveryClaimed
	}
	d.NextRetryAt = &lease
	return nil
}

func (s *DeliveryService) loadRelations(ctx context.Context, d *models.AlertDelivery) error {
	db := s.db.WithContext(ctx)
	if d.Alert == nil {
		var alert models.Alert
		err := db.Where("id = ?", d.AlertID).First(&alert).Error
		switch {
		case err == nil:
			d.Alert = &alert
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load alert: %w", err)
		}
	}
	if d.Channel == nil {
		var channel models.NotificationChannel
		err := db.Where("id = ?", d.ChannelID).First(&channel).Error
		switch {
		case err == nil:
			d.Channel = &channel
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load channel: %w", err)
		}
	}
	return nil
}

func (s *DeliveryService) persist(ctx context.Context, prev, next models.AlertDelivery, result DeliveryResult, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AlertDelivery{}).
			Where("id = ? AND status = ? AND attempt = ?", prev.ID, prev.Status, prev.Attempt).
			Updates(map[string]interface{}{
				"status":        next.Status,
				"attempt":       next.Attempt,
				"error":         next.Error,
				"response":      next.Response,
				"sent_at":       next.SentAt,
				"next_retry_at": next.NextRetryAt,
				"updated_at":    now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update delivery: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDeliveryClaimed
		}

		if prev.Channel == nil {
			return nil
		}
		channel := tx.Model(&models.NotificationChannel{}).Where("id = ?", prev.ChannelID)
		if result.Success {
			if err := channel.Updates(map[string]interface{}{
				"failure_count": 0,
				"last_used":     now,
			}).Error; err != nil {
				return fmt.Errorf("failed to update channel health: %w", err)
			}
			prev.Channel.FailureCount = 0
			prev.Channel.LastUsed = &now
			return nil
		}
		if err := channel.Update("failure_count", gorm.Expr("failure_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to update channel health: %w", err)
		}
		prev.Channel.FailureCount++
		return nil
	})
}

// BatchResult summarizes one ProcessPending run.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Retried   int
	Skipped   int
	Errors    []string
}

// DueDeliveries returns up to the batch size of deliveries ready for an
// attempt on usable channels, oldest first.
func (s *DeliveryService) DueDeliveries(ctx context.Context) ([]models.AlertDelivery, error) {
	now := s.now()
	usable := s.db.Model(&models.NotificationChannel{}).Select("id").
		Where("is_active = ? AND is_verified = ?", true, true)

	var due []models.AlertDelivery
	err := s.db.WithContext(ctx).
		Where("((status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status = ? AND next_retry_at <= ?))",
			models.DeliveryPending, now, models.DeliveryRetrying, now).
		Where("channel_id IN (?)", usable).
		Order("created_at").
		Limit(s.batchSize).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due deliveries: %w", err)
	}
	return due, nil
}

// ProcessPending attempts one bounded batch of due deliveries sequentially.
func (s *DeliveryService) ProcessPending(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	due, err := s.DueDeliveries(ctx)
	if err != nil {
		return result, err
	}

	for i := range due {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		next, err := s.Attempt(ctx, &due[i])
		if errors.Is(err, ErrDeliveryClaimed) {
			result.Skipped++
			continue
		}
		result.Processed++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delivery %s: %v", due[i].ID, err))
			continue
		}
		switch next.Status {
		case models.DeliverySent:
			result.Succeeded++
		case models.DeliveryRetrying:
			result.Retried++
		case models.DeliveryFailed:
			result.Failed++
		}
	}
	return result, nil
}

// Retry re-queues a failed delivery of the user's alert for one more
// attempt.
func (s *DeliveryService) Retry(ctx context.Context, userID, deliveryID string) (*models.AlertDelivery, error) {
	var delivery models.AlertDelivery
	err := s.db.WithContext(ctx).
		Joins("JOIN alerts ON alerts.id = alert_deliveries.alert_id").
		Where("alert_deliveries.id = ? AND alerts.user_id = ?", deliveryID, userID).
		First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery: %w", err)
	}
	if delivery.Status != models.DeliveryFailed {
		return nil, models.Invalid("status", "only failed deliveries can be retried")
	}

	res := s.db.WithContext(ctx).Model(&models.AlertDelivery{}).
		Where("id = ? AND status = ?", delivery.ID, models.DeliveryFailed).
		Updates(map[string]interface{}{
			"status":        models.DeliveryPending,
			"max_attempts":  delivery.Attempt + 1,
			"attempt":       delivery.Attempt + 1,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to requeue delivery: %w", res.Error)
	}
	delivery.Status = models.DeliveryPending
	delivery.Attempt++
	delivery.MaxAttempts = delivery.Attempt
	delivery.NextRetryAt = nil
	return &delivery, nil
}
