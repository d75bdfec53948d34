package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationCheckedIn = "reservation_checked_in"
	EventReservationCompleted = "reservation_completed"
	EventReservationRefunded  = "reservation_refunded"
	EventHoldExpired          = "hold_expired"
	EventWaitlistNotified     = "waitlist_notified"
	EventWaitlistExpired      = "waitlist_expired"

	// EventPaymentReconciliation is published when a payment
	// notification arrives for a reservation that can no longer accept
	// it, so staff can reconcile with the provider dashboard.
	EventPaymentReconciliation = "payment_reconciliation_alert"
)

// ReservationEventPayload is the minimal reservation snapshot for
// event consumers.
type ReservationEventPayload struct {
	ReservationID int64     `json:"reservation_id"`
	RoomID        int64     `json:"room_id"`
	RoomName      string    `json:"room_name"`
	GuestName     string    `json:"guest_name"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ChangedBy     string    `json:"changed_by,omitempty"`
}

// ReconciliationPayload describes a rejected payment notification.
type ReconciliationPayload struct {
	ProviderEventID string `json:"provider_event_id"`
	ReservationID   int64  `json:"reservation_id"`
	Kind            string `json:"kind"`
	CurrentStatus   string `json:"current_status"`
	Reason          string `json:"reason"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
