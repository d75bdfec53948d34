package models

import "time"

type WaitlistEntry struct {
	ID          int64     `json:"id"`
	GuestName   string    `json:"guest_name"`
	GuestPhone  string    `json:"guest_phone"`
	PartySize   int       `json:"party_size"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	NotifiedAt  time.Time `json:"notified_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
