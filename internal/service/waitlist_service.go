package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"karabook/internal/clock"
	"karabook/internal/domain"
	"karabook/internal/events"
	"karabook/internal/models"
	"karabook/internal/notify"
	"karabook/internal/reservation"

	"github.com/rs/zerolog"
)

// WaitlistService manages walk-in entries. The lifecycle is simpler
// than reservations and has no payment coupling; the only external
// effect is one best-effort notification on transition into notified.
type WaitlistService struct {
	store    domain.Store
	notifier domain.Notifier
	eventBus domain.EventPublisher
	clock    clock.Clock
	ttl      time.Duration
	logger   *zerolog.Logger
}

func NewWaitlistService(store domain.Store, notifier domain.Notifier, eventBus domain.EventPublisher, clk clock.Clock, ttl time.Duration, logger *zerolog.Logger) *WaitlistService {
	if clk == nil {
		clk = clock.System
	}
	if ttl <= 0 {
		ttl = models.DefaultWaitlistTTL
	}
	return &WaitlistService{
		store:    store,
		notifier: notifier,
		eventBus: eventBus,
		clock:    clk,
		ttl:      ttl,
		logger:   logger,
	}
}

func (s *WaitlistService) Join(ctx context.Context, guestName, guestPhone string, partySize int) (*models.WaitlistEntry, error) {
	if guestName == "" {
		return nil, fmt.Errorf("guest name is required")
	}
	if partySize <= 0 {
		partySize = 1
	}

	now := s.clock.Now().UTC()
	entry := &models.WaitlistEntry{
		GuestName:   guestName,
		GuestPhone:  guestPhone,
		PartySize:   partySize,
		RequestedAt: now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.CreateWaitlistEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *WaitlistService) Get(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	return s.store.GetWaitlistEntry(ctx, id)
}

func (s *WaitlistService) List(ctx context.Context, activeOnly bool) ([]*models.WaitlistEntry, error) {
	return s.store.ListWaitlist(ctx, activeOnly)
}

// Notify moves an entry to notified and sends one notification. The
// state transition is the source of truth: a failed send is logged and
// does not roll anything back. Notifying an already-notified entry is
// an idempotent no-op.
func (s *WaitlistService) Notify(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	changed, err := s.store.TransitionWaitlistEntry(ctx, id, []string{models.WaitlistWaiting}, models.WaitlistNotified)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		if entry.Status == models.WaitlistNotified {
			return entry, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", reservation.ErrInvalidTransition, entry.Status, models.WaitlistNotified)
	}

	if s.notifier != nil && entry.GuestPhone != "" {
		err := s.notifier.Send(ctx, entry.GuestPhone, notify.TemplateWaitlistReady, map[string]string{
			"guest_name": entry.GuestName,
			"party_size": strconv.Itoa(entry.PartySize),
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("waitlist_id", id).Msg("waitlist notification failed")
		}
	}

	if s.eventBus != nil {
		_ = s.eventBus.PublishJSON(events.EventWaitlistNotified, entry)
	}
	return entry, nil
}

// Seat marks an entry as seated, from either waiting or notified.
func (s *WaitlistService) Seat(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	changed, err := s.store.TransitionWaitlistEntry(ctx, id,
		[]string{models.WaitlistWaiting, models.WaitlistNotified}, models.WaitlistSeated)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed && entry.Status != models.WaitlistSeated {
		return nil, fmt.Errorf("%w: %s -> %s", reservation.ErrInvalidTransition, entry.Status, models.WaitlistSeated)
	}
	return entry, nil
}
