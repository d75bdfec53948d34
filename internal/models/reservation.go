package models

import "time"

type Reservation struct {
	ID              int64     `json:"id"`
	RoomID          int64     `json:"room_id"`
	RoomName        string    `json:"room_name"`
	GuestName       string    `json:"guest_name"`
	GuestPhone      string    `json:"guest_phone"`
	PartySize       int       `json:"party_size"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"` // half-open: [StartTime, EndTime)
	Status          string    `json:"status"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"` // immutable once set
	AmountCents     int64     `json:"amount_cents"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// Active reports whether the reservation still occupies its slot.
// Pending holds count as occupying so a second caller cannot grab the
// range between allocation and intent attach. Cancelled, refunded and
// completed reservations never re-enter the overlap set.
func (r *Reservation) Active() bool {
	switch r.Status {
	case StatusPending, StatusAwaitingPayment, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

func (r *Reservation) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
