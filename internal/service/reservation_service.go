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
	"karabook/internal/payment"

	"github.com/rs/zerolog"
)

var (
	// ErrStartTimeInPast rejects bookings that begin before now.
	ErrStartTimeInPast = errors.New("cannot create reservation in the past")

	// ErrUpstream wraps failures of external collaborators. The local
	// state is consistent; the caller retries the external step.
	ErrUpstream = errors.New("upstream collaborator unavailable")
)

// transitionRetries bounds re-read-and-retry loops on version races.
const transitionRetries = 3

type CreateReservationRequest struct {
	RoomID      int64
	GuestName   string
	GuestPhone  string
	PartySize   int
	StartTime   time.Time
	EndTime     time.Time
	AmountCents int64
}

type ReservationService struct {
	store    domain.Store
	provider domain.PaymentProvider
	eventBus domain.EventPublisher
	clock    clock.Clock
	logger   *zerolog.Logger
}

func NewReservationService(store domain.Store, provider domain.PaymentProvider, eventBus domain.EventPublisher, clk clock.Clock, logger *zerolog.Logger) *ReservationService {
	if clk == nil {
		clk = clock.System
	}
	return &ReservationService{
		store:    store,
		provider: provider,
		eventBus: eventBus,
		clock:    clk,
		logger:   logger,
	}
}

// Create allocates a slot and requests a payment intent.
//
// The allocation commits first so the slot is held durably before any
// network call to the payment collaborator; intent creation never runs
// inside the allocation transaction. If the collaborator is down the
// pending reservation is still returned together with ErrUpstream: the
// client can retry EnsurePaymentIntent, and the sweeper reclaims the
// hold if nobody does.
func (s *ReservationService) Create(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, database.ErrInvalidTimeRange
	}
	if req.StartTime.Before(s.clock.Now()) {
		return nil, ErrStartTimeInPast
	}
	if req.PartySize <= 0 {
		req.PartySize = 1
	}

	res := &models.Reservation{
		RoomID:      req.RoomID,
		GuestName:   req.GuestName,
		GuestPhone:  req.GuestPhone,
		PartySize:   req.PartySize,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		AmountCents: req.AmountCents,
	}

	if err := s.store.AllocateReservation(ctx, res); err != nil {
		if errors.Is(err, database.ErrTimeConflict) {
			metrics.IncAllocation("conflict")
		}
		return nil, err
	}
	metrics.IncAllocation("allocated")
	s.publish(events.EventReservationCreated, res, "guest")

	if err := s.attachIntent(ctx, res); err != nil {
		return res, err
	}

	updated, err := s.store.GetReservation(ctx, res.ID)
	if err != nil {
		return res, err
	}
	return updated, nil
}

// EnsurePaymentIntent retries intent creation for a reservation that is
// still pending after a collaborator failure during Create.
func (s *ReservationService) EnsurePaymentIntent(ctx context.Context, id int64) (*models.Reservation, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.PaymentIntentID != "" {
		return res, nil
	}
	if err := s.attachIntent(ctx, res); err != nil {
		return res, err
	}
	return s.store.GetReservation(ctx, id)
}

func (s *ReservationService) attachIntent(ctx context.Context, res *models.Reservation) error {
	key := payment.IdempotencyKey(res.ID, "create_intent")
	intentID, err := s.provider.CreateIntent(ctx, res.ID, res.AmountCents, key)
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", res.ID).Msg("payment intent creation failed")
		return fmt.Errorf("%w: create intent: %v", ErrUpstream, err)
	}

	if err := s.store.AttachPaymentIntent(ctx, res.ID, res.Version, intentID); err != nil {
		return err
	}
	metrics.IncTransition(models.StatusAwaitingPayment)
	return nil
}

func (s *ReservationService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// Cancel is the explicit guest/staff cancellation of an unpaid hold.
func (s *ReservationService) Cancel(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCancelled, events.EventReservationCancelled, "staff")
}

// CheckIn marks a confirmed reservation as arrived.
func (s *ReservationService) CheckIn(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCheckedIn, events.EventReservationCheckedIn, "staff")
}

// Complete closes out a checked-in reservation at end of service.
func (s *ReservationService) Complete(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCompleted, events.EventReservationCompleted, "staff")
}

// transition applies a guarded transition, re-reading and retrying a
// bounded number of times when a concurrent writer bumps the version.
func (s *ReservationService) transition(ctx context.Context, id int64, target, eventType, actor string) (*models.Reservation, error) {
	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		res, err := s.store.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}

		noop, err := s.store.TransitionStatus(ctx, id, res.Version, target)
		if errors.Is(err, database.ErrConcurrentModification) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		updated, err := s.store.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		if !noop {
			metrics.IncTransition(target)
			s.publish(eventType, updated, actor)
		}
		return updated, nil
	}
	return nil, lastErr
}

// RoomAvailability lists active reservations blocking a room within a
// window, so clients can render open slots.
func (s *ReservationService) RoomAvailability(ctx context.Context, roomID int64, start, end time.Time) ([]*models.Reservation, error) {
	if !end.After(start) {
		return nil, database.ErrInvalidTimeRange
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.RoomBusyRanges(ctx, roomID, start, end)
}

func (s *ReservationService) ListInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	return s.store.ListReservationsInRange(ctx, start, end)
}

func (s *ReservationService) ActiveRooms(ctx context.Context) ([]*models.Room, error) {
	return s.store.GetActiveRooms(ctx)
}

func (s *ReservationService) publish(eventType string, res *models.Reservation, actor string) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: res.ID,
		RoomID:        res.RoomID,
		RoomName:      res.RoomName,
		GuestName:     res.GuestName,
		Status:        res.Status,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		ChangedBy:     actor,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", res.ID).Msg("publish event error")
	}
}
