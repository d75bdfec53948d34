package domain

import (
	"context"
	"time"

	"karabook/internal/models"
)

// Store is the durable storage port implemented by database.DB. The
// reservation table and the dedup ledger are only ever written through
// the guarded methods here.
type Store interface {
	AllocateReservation(ctx context.Context, res *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	TransitionStatus(ctx context.Context, id, fromVersion int64, target string) (noop bool, err error)
	AttachPaymentIntent(ctx context.Context, id, fromVersion int64, intentID string) error
	GetExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*models.Reservation, error)
	ListReservationsInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	RoomBusyRanges(ctx context.Context, roomID int64, start, end time.Time) ([]*models.Reservation, error)

	ApplyPaymentEvent(ctx context.Context, event *models.PaymentEvent, target string) (transitioned bool, err error)
	GetPaymentEvent(ctx context.Context, providerEventID string) (*models.PaymentEvent, error)
	ListUnappliedEvents(ctx context.Context, limit int) ([]*models.PaymentEvent, error)

	UpsertRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetActiveRooms(ctx context.Context) ([]*models.Room, error)

	CreateWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error)
	TransitionWaitlistEntry(ctx context.Context, id int64, from []string, to string) (bool, error)
	GetExpiredWaitlist(ctx context.Context, cutoff time.Time, limit int) ([]*models.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, activeOnly bool) ([]*models.WaitlistEntry, error)
}

// PaymentProvider is the outbound payment collaborator. CreateIntent
// must be called with a deterministic idempotency key so retries never
// mint a second intent for the same reservation.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, reservationID, amountCents int64, idempotencyKey string) (intentID string, err error)
}

// Notifier delivers a guest-facing message. Delivery is best effort:
// callers log failures and never block a state transition on them.
type Notifier interface {
	Send(ctx context.Context, recipient, template string, params map[string]string) error
}

// EventPublisher fans out lifecycle events in-process.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// EventCache is a fast duplicate check in front of the durable ledger.
// Misses are always safe: the ledger's unique constraint is the
// authority.
type EventCache interface {
	Seen(ctx context.Context, providerEventID string) (bool, error)
	MarkSeen(ctx context.Context, providerEventID string) error
}
