package alert

import (
	"context"
	"testing"
	"time"

	"github.com/nexusdash/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertHandlerListAndRead(t *testing.T) {
	db := setupDB(t)
	clk := newClock()
	am := NewAlertManager(db, WithClock(clk.Now))
	h := NewAlertHandler(db)
	h.SetClock(clk.Now)
	ctx := context.Background()

	var ids []string
	for _, in := range []CreateAlertInput{
		manualInput("u1", "openai", models.AlertTypeErrorRate),
		manualInput("u1", "openai", models.AlertTypeSlowResponse),
		manualInput("u1", "anthropic", models.AlertTypeErrorRate),
		manualInput("u2", "openai", models.AlertTypeErrorRate),
	} {
		a, created, err := am.CreateAlert(ctx, in)
		require.NoError(t, err)
		require.True(t, created)
		ids = append(ids, a.ID)
		clk.Advance(time.Minute)
	}

	all, err := h.ListAlerts(ctx, "u1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	byType, err := h.ListAlerts(ctx, "u1", ListFilter{Type: models.AlertTypeErrorRate, ProviderID: "openai"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, ids[0], byType[0].ID)

	limited, err := h.ListAlerts(ctx, "u1", ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[1], limited[0].ID)

	count, err := h.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	read, err := h.MarkAsRead(ctx, "u1", ids[0])
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	_, err = h.MarkAsRead(ctx, "u2", ids[0])
	assert.ErrorIs(t, err, models.ErrNotFound)

	unread, err := h.ListAlerts(ctx, "u1", ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := h.MarkManyAsRead(ctx, "u1", []string{ids[1], ids[3]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "alerts of other users are ignored")

	n, err = h.MarkManyAsRead(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err = h.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAlertHandlerResolve(t *testing.T) {
	db := setupDB(t)
	clk := newClock()
	am := NewAlertManager(db, WithClock(clk.Now))
	h := NewAlertHandler(db)
	h.SetClock(clk.Now)
	ctx := context.Background()

	a, _, err := am.CreateAlert(ctx, manualInput("u1", "p1", models.AlertTypeDowntime))
	require.NoError(t, err)
	b, _, err := am.CreateAlert(ctx, manualInput("u1", "p2", models.AlertTypeDowntime))
	require.NoError(t, err)

	clk.Advance(time.Hour)
	resolved, err := h.ResolveAlert(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, baseTime.Add(time.Hour), *resolved.ResolvedAt)

	open, err := h.ListAlerts(ctx, "u1", ListFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, b.ID, open[0].ID)

	n, err := h.ResolveMany(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCleanupOldAlerts(t *testing.T) {
	db := setupDB(t)
	clk := newClock()
	am := NewAlertManager(db, WithClock(clk.Now))
	h := NewAlertHandler(db)
	h.SetClock(clk.Now)
	ctx := context.Background()

	old, _, err := am.CreateAlert(ctx, manualInput("u1", "p1", models.AlertTypeDowntime))
	require.NoError(t, err)
	recent, _, err := am.CreateAlert(ctx, manualInput("u1", "p2", models.AlertTypeDowntime))
	require.NoError(t, err)
	open, _, err := am.CreateAlert(ctx, manualInput("u1", "p3", models.AlertTypeDowntime))
	require.NoError(t, err)

	_, err = h.ResolveAlert(ctx, "u1", old.ID)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.AlertDelivery{
		AlertID: old.ID, ChannelID: "c1", Status: models.DeliverySent, Attempt: 1, MaxAttempts: 3,
	}).Error)
	require.NoError(t, db.Create(&models.AlertDelivery{
		AlertID: open.ID, ChannelID: "c1", Status: models.DeliverySent, Attempt: 1, MaxAttempts: 3,
	}).Error)

	clk.Advance(20 * 24 * time.Hour)
	_, err = h.ResolveAlert(ctx, "u1", recent.ID)
	require.NoError(t, err)

	clk.Advance(11 * 24 * time.Hour)
	deleted, err := h.CleanupOldAlerts(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var alerts []models.Alert
	require.NoError(t, db.Order("provider_id").Find(&alerts).Error)
	require.Len(t, alerts, 2)
	assert.Equal(t, recent.ID, alerts[0].ID)
	assert.Equal(t, open.ID, alerts[1].ID)

	var deliveries int64
	require.NoError(t, db.Model(&models.AlertDelivery{}).Count(&deliveries).Error)
	assert.Equal(t, int64(1), deliveries, "deliveries of purged alerts go with them")
}
