package models

import (
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

const DefaultMaxAttempts = 3

type AlertDelivery struct {
	Model
	AlertID     string         `json:"alert_id" gorm:"index;not null"`
	ChannelID   string         `json:"channel_id" gorm:"index;not null"`
	Status      DeliveryStatus `json:"status" gorm:"index;not null"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Error       *string        `json:"error"`
	Response    *string        `json:"response"`
	SentAt      *time.Time     `json:"sent_at"`
	NextRetryAt *time.Time     `json:"next_retry_at" gorm:"index"`

	Alert   *Alert               `json:"alert,omitempty" gorm:"foreignKey:AlertID"`
	Channel *NotificationChannel `json:"channel,omitempty" gorm:"foreignKey:ChannelID"`
}

// JobLock is a lease row that keeps one instance running a job at a time
// when several servers share a database.
type JobLock struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Owner     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
}
