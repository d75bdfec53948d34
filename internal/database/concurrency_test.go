package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"karabook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentAllocation(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, nil, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	room := seedRoom(t, db, "Contested")

	start := time.Date(2026, 9, 5, 20, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			res := &models.Reservation{
				RoomID:    room.ID,
				GuestName: "Guest",
				PartySize: 2,
				StartTime: start,
				EndTime:   end,
			}
			results <- db.AllocateReservation(ctx, res)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrTimeConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected allocation error: %v", err)
		}
	}

	// The immediate write lock serializes check-then-insert, so exactly
	// one caller wins the slot.
	assert.Equal(t, 1, successCount, "exactly one allocation should win")
	assert.Equal(t, numGoroutines-1, conflictCount)

	busy, err := db.RoomBusyRanges(ctx, room.ID, start, end)
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}

func TestConcurrentTransition_SingleWinner(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "transition.db")
	db, err := NewDB(dbPath, nil, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	room := seedRoom(t, db, "Versioned")
	start := time.Date(2026, 9, 5, 20, 0, 0, 0, time.UTC)
	res := seedReservation(t, db, room.ID, start, start.Add(time.Hour))

	const numGoroutines = 8
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	// Everyone holds the same version token; only one guarded update can
	// apply it.
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := db.TransitionStatus(ctx, res.ID, res.Version, models.StatusAwaitingPayment)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	winners := 0
	stale := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConcurrentModification):
			stale++
		default:
			t.Fatalf("unexpected transition error: %v", err)
		}
	}

	// Losers that land after the winner's commit read the new status and
	// report an idempotent noop success, so winners >= 1 and there is no
	// double version bump.
	assert.GreaterOrEqual(t, winners, 1)
	assert.Equal(t, numGoroutines, winners+stale)

	got, err := db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingPayment, got.Status)
	assert.Equal(t, res.Version+1, got.Version)
}
