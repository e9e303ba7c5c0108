package jobs

import (
	"context"
	"fmt"

	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/notify"
	"github.com/sirupsen/logrus"
)

const (
	DeliveryJobName = "notification-delivery"
	CleanupJobName  = "cleanup"
)

// NotificationDeliveryJob processes one bounded batch of due deliveries.
type NotificationDeliveryJob struct {
	*runner
	deliveries *notify.DeliveryService
}

func NewNotificationDeliveryJob(deliveries *notify.DeliveryService, lock Lock) *NotificationDeliveryJob {
	j := &NotificationDeliveryJob{deliveries: deliveries}
	j.runner = newRunner(DeliveryJobName, lock, j.run)
	return j
}

func (j *NotificationDeliveryJob) run(ctx context.Context, r *Result) error {
	batch, err := j.deliveries.ProcessPending(ctx)
	if err != nil {
		return err
	}
	r.Processed = batch.Processed
	r.Succeeded = batch.Succeeded
	r.Failed = batch.Failed
	r.Retried = batch.Retried
	r.Errors = append(r.Errors, batch.Errors...)
	return nil
}

// LeasePurger removes expired job leases.
type LeasePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupJob deletes resolved alerts past retention and stale job leases.
type CleanupJob struct {
	*runner
	alerts        *alert.AlertHandler
	retentionDays int
	leases        LeasePurger
}

func NewCleanupJob(alerts *alert.AlertHandler, retentionDays int, leases LeasePurger, lock Lock) *CleanupJob {
	j := &CleanupJob{
		alerts:        alerts,
		retentionDays: retentionDays,
		leases:        leases,
	}
	j.runner = newRunner(CleanupJobName, lock, j.run)
	return j
}

func (j *CleanupJob) run(ctx context.Context, r *Result) error {
	deleted, err := j.alerts.CleanupOldAlerts(ctx, j.retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean up alerts: %w", err)
	}
	r.Processed = int(deleted)
	r.Succeeded = int(deleted)

	if j.leases != nil {
		purged, err := j.leases.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if purged > 0 {
			logrus.WithField("purged", purged).Info("Expired job leases removed")
		}
	}
	return nil
}
