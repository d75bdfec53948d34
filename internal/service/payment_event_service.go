package service

import (
	"context"
	"errors"
	"fmt"

	"karabook/internal/database"
	"karabook/internal/domain"
	"karabook/internal/events"
	"karabook/internal/metrics"
	"karabook/internal/models"
	"karabook/internal/reservation"

	"github.com/rs/zerolog"
)

// Outcome classifies one ApplyEvent call.
type Outcome string

const (
	// OutcomeApplied: the event drove a state transition (or found the
	// reservation already at its target, which counts as success).
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyApplied: the provider redelivered an event id that
	// is already in the ledger; nothing was re-run.
	OutcomeAlreadyApplied Outcome = "already_applied"
)

// PaymentEventService applies inbound payment notifications to
// reservations exactly-once-effectively. Signature verification is the
// webhook boundary's job; payloads arriving here are authenticated.
type PaymentEventService struct {
	store    domain.Store
	cache    domain.EventCache
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewPaymentEventService(store domain.Store, cache domain.EventCache, eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentEventService {
	return &PaymentEventService{
		store:    store,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ApplyEvent maps the event kind to a lifecycle trigger and applies it
// under the dedup ledger's protection. Duplicate delivery returns
// OutcomeAlreadyApplied; transition rejections surface as errors after
// the ledger has recorded the event for reconciliation; storage races
// surface as retryable errors with nothing committed.
func (s *PaymentEventService) ApplyEvent(ctx context.Context, providerEventID string, reservationID int64, kind, payload string) (Outcome, error) {
	if providerEventID == "" {
		return "", fmt.Errorf("provider event id is required")
	}

	// Fast path: the cache only ever contains ids whose ledger row has
	// committed, so a hit can short-circuit without touching the store.
	if s.cache != nil {
		if seen, err := s.cache.Seen(ctx, providerEventID); err == nil && seen {
			metrics.IncPaymentEvent("duplicate")
			return OutcomeAlreadyApplied, nil
		}
	}

	target, err := reservation.TriggerForEventKind(kind)
	if err != nil {
		metrics.IncPaymentEvent("rejected")
		return "", err
	}

	event := &models.PaymentEvent{
		ProviderEventID: providerEventID,
		ReservationID:   reservationID,
		Kind:            kind,
		Payload:         payload,
	}

	transitioned, err := s.store.ApplyPaymentEvent(ctx, event, target)
	switch {
	case errors.Is(err, database.ErrDuplicateEvent):
		s.markSeen(ctx, providerEventID)
		metrics.IncPaymentEvent("duplicate")
		return OutcomeAlreadyApplied, nil

	case errors.Is(err, reservation.ErrInvalidTransition):
		// The ledger row is committed (applied=false); raise the alert
		// and surface the rejection for manual reconciliation instead
		// of silently resurrecting a cancelled reservation.
		s.markSeen(ctx, providerEventID)
		s.alertReconciliation(ctx, event, err)
		return "", err

	case err != nil:
		metrics.IncPaymentEvent("error")
		return "", err
	}

	s.markSeen(ctx, providerEventID)
	metrics.IncPaymentEvent("applied")

	if transitioned {
		metrics.IncTransition(target)
		s.publishLifecycle(ctx, reservationID, target)
	}
	return OutcomeApplied, nil
}

// UnappliedEvents exposes the reconciliation backlog.
func (s *PaymentEventService) UnappliedEvents(ctx context.Context, limit int) ([]*models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListUnappliedEvents(ctx, limit)
}

func (s *PaymentEventService) markSeen(ctx context.Context, providerEventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkSeen(ctx, providerEventID); err != nil {
		s.logger.Warn().Err(err).Str("provider_event_id", providerEventID).Msg("event cache mark failed")
	}
}

func (s *PaymentEventService) alertReconciliation(ctx context.Context, event *models.PaymentEvent, cause error) {
	metrics.IncPaymentEvent("rejected")
	metrics.IncReconciliationAlert()

	current := "unknown"
	if res, err := s.store.GetReservation(ctx, event.ReservationID); err == nil {
		current = res.Status
	}

	s.logger.Error().
		Str("provider_event_id", event.ProviderEventID).
		Int64("reservation_id", event.ReservationID).
		Str("kind", event.Kind).
		Str("current_status", current).
		Msg("payment event rejected by lifecycle, manual reconciliation needed")

	if s.eventBus != nil {
		_ = s.eventBus.PublishJSON(events.EventPaymentReconciliation, events.ReconciliationPayload{
			ProviderEventID: event.ProviderEventID,
			ReservationID:   event.ReservationID,
			Kind:            event.Kind,
			CurrentStatus:   current,
			Reason:          cause.Error(),
		})
	}
}

func (s *PaymentEventService) publishLifecycle(ctx context.Context, reservationID int64, target string) {
	if s.eventBus == nil {
		return
	}
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return
	}

	var eventType string
	switch target {
	case models.StatusConfirmed:
		eventType = events.EventReservationConfirmed
	case models.StatusCancelled:
		eventType = events.EventReservationCancelled
	case models.StatusRefunded:
		eventType = events.EventReservationRefunded
	default:
		return
	}

	_ = s.eventBus.PublishJSON(eventType, events.ReservationEventPayload{
		ReservationID: res.ID,
		RoomID:        res.RoomID,
		RoomName:      res.RoomName,
		GuestName:     res.GuestName,
		Status:        res.Status,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		ChangedBy:     "payment_provider",
	})
}
