package notify

import (
	"math"
	"time"

	"github.com/nexusdash/nexus/internal/models"
)

// BaseBackoff is the wait after the first failed attempt; each following
// retry waits three times longer.
const BaseBackoff = 5 * time.Minute

// MaxBackoffAttempt is the attempt past which the delay stops growing.
// Manual retries raise a delivery's attempt count without bound.
const MaxBackoffAttempt = 10

// Backoff returns the delay before retrying after the given attempt
// (1-based): 5m, 15m, 45m, ... capped at the delay for MaxBackoffAttempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > MaxBackoffAttempt {
		attempt = MaxBackoffAttempt
	}
	return BaseBackoff * time.Duration(math.Pow(3, float64(attempt-1)))
}

// Transition applies the outcome of one send attempt to a delivery and
// returns the updated copy. The input is not modified.
func Transition(d models.AlertDelivery, result DeliveryResult, now time.Time) models.AlertDelivery {
	next := d
	next.Response = optional(result.Response)

	if result.Success {
		next.Status = models.DeliverySent
		next.SentAt = &now
		next.NextRetryAt = nil
		next.Error = nil
		return next
	}

	next.Error = optional(result.Error)
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	if result.ShouldRetry && d.Attempt < maxAttempts {
		retryAt := now.Add(Backoff(d.Attempt))
		next.Status = models.DeliveryRetrying
		next.NextRetryAt = &retryAt
		next.Attempt = d.Attempt + 1
		return next
	}

	next.Status = models.DeliveryFailed
	next.NextRetryAt = nil
	return next
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
