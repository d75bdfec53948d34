package database

import (
	"context"
	"testing"

	"karabook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRoom(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	room := &models.Room{Name: "Alpha", Capacity: 4, IsActive: true}
	require.NoError(t, db.UpsertRoom(ctx, room))
	firstID := room.ID
	require.NotZero(t, firstID)

	// Re-syncing the same name updates in place and keeps the identity.
	updated := &models.Room{Name: "Alpha", Capacity: 8, IsActive: false}
	require.NoError(t, db.UpsertRoom(ctx, updated))
	assert.Equal(t, firstID, updated.ID)

	got, err := db.GetRoom(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Capacity)
	assert.False(t, got.IsActive)
}

func TestGetActiveRooms(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.UpsertRoom(ctx, &models.Room{Name: "Open", Capacity: 4, IsActive: true}))
	require.NoError(t, db.UpsertRoom(ctx, &models.Room{Name: "Closed", Capacity: 4, IsActive: false}))

	rooms, err := db.GetActiveRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "Open", rooms[0].Name)
}

func TestGetRoom_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetRoom(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetRoomByName(context.Background(), "Ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
