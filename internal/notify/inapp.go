package notify

import (
	"context"

	"github.com/nexusdash/nexus/internal/models"
)

// InAppAdapter needs no network call: the alert row itself is what the
// dashboard shows.
type InAppAdapter struct{}

func (InAppAdapter) Deliver(ctx context.Context, msg Message, channel *models.NotificationChannel) DeliveryResult {
	return DeliveryResult{Success: true, Response: "stored"}
}
