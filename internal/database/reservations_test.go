package database

import (
	"context"
	"testing"
	"time"

	"karabook/internal/clock"
	"karabook/internal/models"
	"karabook/internal/reservation"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", nil, &logger)
	require.NoError(t, err)
	return db
}

func setupTestDBWithClock(t *testing.T, clk clock.Clock) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", clk, &logger)
	require.NoError(t, err)
	return db
}

func seedRoom(t *testing.T, db *DB, name string) *models.Room {
	t.Helper()
	room := &models.Room{Name: name, Capacity: 6, IsActive: true}
	require.NoError(t, db.UpsertRoom(context.Background(), room))
	require.NotZero(t, room.ID)
	return room
}

func seedReservation(t *testing.T, db *DB, roomID int64, start, end time.Time) *models.Reservation {
	t.Helper()
	res := &models.Reservation{
		RoomID:      roomID,
		GuestName:   "Yuki",
		GuestPhone:  "+81-90-0000-0000",
		PartySize:   4,
		StartTime:   start,
		EndTime:     end,
		AmountCents: 6000,
	}
	require.NoError(t, db.AllocateReservation(context.Background(), res))
	return res
}

func TestAllocateReservation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Tokyo")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	res := seedReservation(t, db, room.ID, start, end)
	assert.NotZero(t, res.ID)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, int64(1), res.Version)
	assert.Empty(t, res.PaymentIntentID)

	got, err := db.GetReservation(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Name, got.RoomName)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
}

func TestAllocateReservation_Overlap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Osaka")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	seedReservation(t, db, room.ID, start, end)

	ctx := context.Background()

	// Fully inside the existing range.
	err := db.AllocateReservation(ctx, &models.Reservation{
		RoomID: room.ID, GuestName: "Second",
		StartTime: start.Add(30 * time.Minute), EndTime: end.Add(-30 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrTimeConflict)

	// Straddling the start.
	err = db.AllocateReservation(ctx, &models.Reservation{
		RoomID: room.ID, GuestName: "Third",
		StartTime: start.Add(-time.Hour), EndTime: start.Add(time.Minute),
	})
	assert.ErrorIs(t, err, ErrTimeConflict)
}

func TestAllocateReservation_AbuttingRangesDoNotConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Kyoto")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	seedReservation(t, db, room.ID, start, end)

	// [end, end+2h) shares only the boundary instant; half-open ranges
	// make this legal.
	after := seedReservation(t, db, room.ID, end, end.Add(2*time.Hour))
	assert.NotZero(t, after.ID)

	before := seedReservation(t, db, room.ID, start.Add(-time.Hour), start)
	assert.NotZero(t, before.ID)
}

func TestAllocateReservation_CancelledDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Nagoya")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	res := seedReservation(t, db, room.ID, start, end)

	_, err := db.TransitionStatus(context.Background(), res.ID, res.Version, models.StatusCancelled)
	require.NoError(t, err)

	again := seedReservation(t, db, room.ID, start, end)
	assert.NotZero(t, again.ID)
}

func TestAllocateReservation_Validation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Sapporo")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	ctx := context.Background()

	err := db.AllocateReservation(ctx, &models.Reservation{
		RoomID: room.ID, StartTime: start, EndTime: start,
	})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	err = db.AllocateReservation(ctx, &models.Reservation{
		RoomID: room.ID, StartTime: start, EndTime: start.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	err = db.AllocateReservation(ctx, &models.Reservation{
		RoomID: 9999, StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAllocateReservation_InactiveRoom(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := &models.Room{Name: "Closed", Capacity: 4, IsActive: false}
	require.NoError(t, db.UpsertRoom(context.Background(), room))

	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	err := db.AllocateReservation(context.Background(), &models.Reservation{
		RoomID: room.ID, StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrRoomInactive)
}

func TestTransitionStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Shibuya")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	ctx := context.Background()
	noop, err := db.TransitionStatus(ctx, res.ID, res.Version, models.StatusAwaitingPayment)
	require.NoError(t, err)
	assert.False(t, noop)

	got, err := db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingPayment, got.Status)
	assert.Equal(t, res.Version+1, got.Version)
}

func TestTransitionStatus_NoopOnSameTarget(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Ginza")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	ctx := context.Background()
	noop, err := db.TransitionStatus(ctx, res.ID, res.Version, models.StatusPending)
	require.NoError(t, err)
	assert.True(t, noop)

	// No version bump on a noop.
	got, err := db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Version, got.Version)
}

func TestTransitionStatus_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Ueno")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	ctx := context.Background()
	_, err := db.TransitionStatus(ctx, res.ID, res.Version, models.StatusAwaitingPayment)
	require.NoError(t, err)

	// Second writer still holds the old version token.
	_, err = db.TransitionStatus(ctx, res.ID, res.Version, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestTransitionStatus_InvalidTarget(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Akiba")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	_, err := db.TransitionStatus(context.Background(), res.ID, res.Version, models.StatusCheckedIn)
	assert.ErrorIs(t, err, reservation.ErrInvalidTransition)

	_, err = db.TransitionStatus(context.Background(), 9999, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachPaymentIntent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Roppongi")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	ctx := context.Background()
	require.NoError(t, db.AttachPaymentIntent(ctx, res.ID, res.Version, "pi_abc"))

	got, err := db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_abc", got.PaymentIntentID)
	assert.Equal(t, models.StatusAwaitingPayment, got.Status)

	// Re-attaching the same intent is an idempotent no-op.
	require.NoError(t, db.AttachPaymentIntent(ctx, res.ID, got.Version, "pi_abc"))

	// A different intent id is rejected; the column is set-once.
	err = db.AttachPaymentIntent(ctx, res.ID, got.Version, "pi_other")
	assert.ErrorIs(t, err, ErrIntentAlreadySet)

	final, err := db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_abc", final.PaymentIntentID)
}

func TestAttachPaymentIntent_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Harajuku")
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	ctx := context.Background()
	_, err := db.TransitionStatus(ctx, res.ID, res.Version, models.StatusCancelled)
	require.NoError(t, err)

	err = db.AttachPaymentIntent(ctx, res.ID, res.Version, "pi_late")
	assert.ErrorIs(t, err, reservation.ErrInvalidTransition)
}

func TestGetExpiredHolds(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	db := setupTestDBWithClock(t, clk)
	defer db.Close()

	room := seedRoom(t, db, "Ikebukuro")
	start := time.Date(2026, 9, 2, 19, 0, 0, 0, time.UTC)
	stale := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	clk.Advance(20 * time.Minute)
	fresh := seedReservation(t, db, room.ID, start.Add(2*time.Hour), start.Add(3*time.Hour))

	cutoff := clk.Now().Add(-15 * time.Minute)
	holds, err := db.GetExpiredHolds(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, stale.ID, holds[0].ID)
	assert.NotEqual(t, fresh.ID, holds[0].ID)
}

func TestRoomBusyRanges(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Shinjuku")
	other := seedRoom(t, db, "Ebisu")
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

	first := seedReservation(t, db, room.ID, start, start.Add(time.Hour))
	seedReservation(t, db, other.ID, start, start.Add(time.Hour))
	cancelled := seedReservation(t, db, room.ID, start.Add(2*time.Hour), start.Add(3*time.Hour))
	_, err := db.TransitionStatus(context.Background(), cancelled.ID, cancelled.Version, models.StatusCancelled)
	require.NoError(t, err)

	busy, err := db.RoomBusyRanges(context.Background(), room.ID, start.Add(-time.Hour), start.Add(6*time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, first.ID, busy[0].ID)
}

func TestListReservationsInRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	room := seedRoom(t, db, "Meguro")
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	seedReservation(t, db, room.ID, start, start.Add(time.Hour))
	seedReservation(t, db, room.ID, start.Add(time.Hour), start.Add(2*time.Hour))

	list, err := db.ListReservationsInRange(context.Background(), start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = db.ListReservationsInRange(context.Background(), start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
