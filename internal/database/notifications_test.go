package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusrides/internal/models"
)

func TestNotificationLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n := &models.Notification{
		UserID:    10,
		Title:     "Booking confirmed",
		Message:   "Your booking BK-000001 has been confirmed",
		Category:  models.CategoryBooking,
		RelatedID: 1,
		Priority:  models.PriorityNormal,
	}
	require.NoError(t, db.CreateNotification(ctx, n))
	assert.NotZero(t, n.ID)

	listed, err := db.ListUserNotifications(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Booking confirmed", listed[0].Title)
	assert.Equal(t, models.CategoryBooking, listed[0].Category)
	assert.False(t, listed[0].Read)

	require.NoError(t, db.MarkNotificationRead(ctx, n.ID, 10))
	listed, err = db.ListUserNotifications(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Read)

	// Read receipts are scoped to the owner.
	assert.ErrorIs(t, db.MarkNotificationRead(ctx, n.ID, 11), ErrNotFound)
	assert.ErrorIs(t, db.MarkNotificationRead(ctx, 9999, 10), ErrNotFound)
}

func TestListUserNotificationsLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		n := &models.Notification{
			UserID:   10,
			Title:    fmt.Sprintf("Notice %d", i),
			Message:  "ping",
			Priority: models.PriorityLow,
		}
		require.NoError(t, db.CreateNotification(ctx, n))
	}

	listed, err := db.ListUserNotifications(ctx, 10, 3)
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	// Another user's feed stays empty.
	listed, err = db.ListUserNotifications(ctx, 11, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
