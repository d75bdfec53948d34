package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"karabook/internal/clock"
	"karabook/internal/database"
	"karabook/internal/domain"
	"karabook/internal/events"
	"karabook/internal/metrics"
	"karabook/internal/models"
	"karabook/internal/notify"
	"karabook/internal/reservation"

	"github.com/rs/zerolog"
)

// SweepStats summarizes one sweeper run.
type SweepStats struct {
	HoldsExamined    int
	HoldsCancelled   int
	HoldsSkipped     int
	WaitlistExamined int
	WaitlistExpired  int
}

// Sweeper reclaims stale holds and archives stale waitlist entries. It
// carries no timer of its own: an external job runner calls Sweep on
// whatever interval operations chose. Every candidate transition is
// independently guarded, so overlapping runs and double sweeps are
// no-ops rather than errors.
type Sweeper struct {
	store       domain.Store
	notifier    domain.Notifier
	eventBus    domain.EventPublisher
	clock       clock.Clock
	holdTTL     time.Duration
	waitlistTTL time.Duration
	batchSize   int
	logger      *zerolog.Logger
}

func NewSweeper(store domain.Store, notifier domain.Notifier, eventBus domain.EventPublisher, clk clock.Clock, holdTTL, waitlistTTL time.Duration, batchSize int, logger *zerolog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.System
	}
	if holdTTL <= 0 {
		holdTTL = models.DefaultHoldTTL
	}
	if waitlistTTL <= 0 {
		waitlistTTL = models.DefaultWaitlistTTL
	}
	if batchSize <= 0 {
		batchSize = models.DefaultSweepBatchSize
	}
	return &Sweeper{
		store:       store,
		notifier:    notifier,
		eventBus:    eventBus,
		clock:       clk,
		holdTTL:     holdTTL,
		waitlistTTL: waitlistTTL,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Sweep runs one reclamation pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	if err := s.sweepHolds(ctx, &stats); err != nil {
		return stats, err
	}
	if err := s.sweepWaitlist(ctx, &stats); err != nil {
		return stats, err
	}

	metrics.IncSweep()
	s.logger.Info().
		Int("holds_cancelled", stats.HoldsCancelled).
		Int("holds_skipped", stats.HoldsSkipped).
		Int("waitlist_expired", stats.WaitlistExpired).
		Msg("expiry sweep completed")
	return stats, nil
}

func (s *Sweeper) sweepHolds(ctx context.Context, stats *SweepStats) error {
	cutoff := s.clock.Now().UTC().Add(-s.holdTTL)
	holds, err := s.store.GetExpiredHolds(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("load expired holds: %w", err)
	}

	for _, hold := range holds {
		stats.HoldsExamined++

		// The guard re-checks status at commit time: a payment that
		// confirmed the hold after our read wins, and the cancel is
		// skipped harmlessly.
		noop, err := s.store.TransitionStatus(ctx, hold.ID, hold.Version, models.StatusCancelled)
		if errors.Is(err, database.ErrConcurrentModification) || errors.Is(err, reservation.ErrInvalidTransition) {
			stats.HoldsSkipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("cancel hold %d: %w", hold.ID, err)
		}
		if noop {
			stats.HoldsSkipped++
			continue
		}

		stats.HoldsCancelled++
		metrics.IncExpired("hold")
		metrics.IncTransition(models.StatusCancelled)

		if s.eventBus != nil {
			_ = s.eventBus.PublishJSON(events.EventHoldExpired, events.ReservationEventPayload{
				ReservationID: hold.ID,
				RoomID:        hold.RoomID,
				RoomName:      hold.RoomName,
				GuestName:     hold.GuestName,
				Status:        models.StatusCancelled,
				StartTime:     hold.StartTime,
				EndTime:       hold.EndTime,
				ChangedBy:     "sweeper",
			})
		}
		s.notifyExpired(ctx, hold)
	}
	return nil
}

func (s *Sweeper) notifyExpired(ctx context.Context, hold *models.Reservation) {
	if s.notifier == nil || hold.GuestPhone == "" {
		return
	}
	err := s.notifier.Send(ctx, hold.GuestPhone, notify.TemplateReservationExpired, map[string]string{
		"guest_name": hold.GuestName,
		"room_name":  hold.RoomName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("reservation_id", hold.ID).Msg("expiry notification failed")
	}
}

func (s *Sweeper) sweepWaitlist(ctx context.Context, stats *SweepStats) error {
	now := s.clock.Now().UTC()
	entries, err := s.store.GetExpiredWaitlist(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("load expired waitlist: %w", err)
	}

	for _, entry := range entries {
		stats.WaitlistExamined++

		changed, err := s.store.TransitionWaitlistEntry(ctx, entry.ID,
			[]string{models.WaitlistWaiting, models.WaitlistNotified}, models.WaitlistExpired)
		if err != nil {
			return fmt.Errorf("expire waitlist entry %d: %w", entry.ID, err)
		}
		if !changed {
			continue
		}

		stats.WaitlistExpired++
		metrics.IncExpired("waitlist")
		if s.eventBus != nil {
			_ = s.eventBus.PublishJSON(events.EventWaitlistExpired, entry)
		}
	}
	return nil
}
