package notify

import (
	"net/http"
	"testing"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Backoff(0))
	assert.Equal(t, 5*time.Minute, Backoff(1))
	assert.Equal(t, 15*time.Minute, Backoff(2))
	assert.Equal(t, 45*time.Minute, Backoff(3))
	assert.Equal(t, 135*time.Minute, Backoff(4))

	ceiling := Backoff(MaxBackoffAttempt)
	assert.Equal(t, 5*time.Minute*19683, ceiling)
	assert.Equal(t, ceiling, Backoff(MaxBackoffAttempt+1))
	assert.Equal(t, ceiling, Backoff(64), "large attempts do not overflow")
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code    int
		success bool
		retry   bool
	}{
		{http.StatusOK, true, false},
		{http.StatusNoContent, true, false},
		{http.StatusMovedPermanently, false, false},
		{http.StatusBadRequest, false, false},
		{http.StatusNotFound, false, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusInternalServerError, false, true},
		{http.StatusServiceUnavailable, false, true},
	}
	for _, tt := range tests {
		success, retry := ClassifyStatus(tt.code)
		assert.Equal(t, tt.success, success, "status %d", tt.code)
		assert.Equal(t, tt.retry, retry, "status %d", tt.code)
	}
}

func pendingDelivery(attempt, maxAttempts int) models.AlertDelivery {
	d := models.AlertDelivery{
		AlertID:     "a1",
		ChannelID:   "c1",
		Status:      models.DeliveryPending,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
	d.ID = "d1"
	return d
}

func TestTransitionRetryable(t *testing.T) {
	d := pendingDelivery(1, 3)
	next := Transition(d, DeliveryResult{Error: "unexpected status 503", ShouldRetry: true, StatusCode: 503}, baseTime)

	assert.Equal(t, models.DeliveryRetrying, next.Status)
	assert.Equal(t, 2, next.Attempt)
	require.NotNil(t, next.NextRetryAt)
	assert.Equal(t, baseTime.Add(5*time.Minute), *next.NextRetryAt)
	require.NotNil(t, next.Error)
	assert.Equal(t, "unexpected status 503", *next.Error)
	assert.Nil(t, next.Response)

	assert.Equal(t, models.DeliveryPending, d.Status, "input is untouched")
	assert.Equal(t, 1, d.Attempt)

	again := Transition(next, DeliveryResult{Error: "timeout", ShouldRetry: true}, baseTime)
	assert.Equal(t, 3, again.Attempt)
	assert.Equal(t, baseTime.Add(15*time.Minute), *again.NextRetryAt)
}

func TestTransitionExhausted(t *testing.T) {
	d := pendingDelivery(3, 3)
	d.Status = models.DeliveryRetrying
	retryAt := baseTime
	d.NextRetryAt = &retryAt

	next := Transition(d, DeliveryResult{Error: "boom", ShouldRetry: true}, baseTime)
	assert.Equal(t, models.DeliveryFailed, next.Status)
	assert.Equal(t, 3, next.Attempt)
	assert.Nil(t, next.NextRetryAt)
}

func TestTransitionPermanentFailure(t *testing.T) {
	next := Transition(pendingDelivery(1, 3), DeliveryResult{Error: "unexpected status 404", StatusCode: 404, Response: "no such hook"}, baseTime)
	assert.Equal(t, models.DeliveryFailed, next.Status)
	assert.Equal(t, 1, next.Attempt)
	require.NotNil(t, next.Response)
	assert.Equal(t, "no such hook", *next.Response)
}

func TestTransitionDefaultsMaxAttempts(t *testing.T) {
	next := Transition(pendingDelivery(2, 0), DeliveryResult{ShouldRetry: true, Error: "x"}, baseTime)
	assert.Equal(t, models.DeliveryRetrying, next.Status, "zero max attempts falls back to the default")
}

func TestTransitionSuccess(t *testing.T) {
	d := pendingDelivery(2, 3)
	d.Status = models.DeliveryRetrying
	errText := "old failure"
	d.Error = &errText

	next := Transition(d, DeliveryResult{Success: true, Response: "ok"}, baseTime)
	assert.Equal(t, models.DeliverySent, next.Status)
	require.NotNil(t, next.SentAt)
	assert.Equal(t, baseTime, *next.SentAt)
	assert.Nil(t, next.Error)
	assert.Nil(t, next.NextRetryAt)
	assert.Equal(t, 2, next.Attempt)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	// a multi-byte rune cut in half is dropped
	assert.Equal(t, "a...", truncate("aé", 2))
}
