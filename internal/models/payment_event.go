package models

import "time"

// PaymentEvent is a row in the dedup ledger. Rows are only ever
// appended; a provider event id that is already present means the
// notification was delivered before. Applied flips to true in the same
// transaction that commits the reservation transition, so a crash in
// between leaves a retryable row instead of a dropped event.
type PaymentEvent struct {
	ID              int64     `json:"id"`
	ProviderEventID string    `json:"provider_event_id"`
	ReservationID   int64     `json:"reservation_id"`
	Kind            string    `json:"kind"`
	Payload         string    `json:"payload"`
	Applied         bool      `json:"applied"`
	ReceivedAt      time.Time `json:"received_at"`
}
