package models

import "time"

// Reservation lifecycle statuses.
const (
	StatusPending         = "pending"
	StatusAwaitingPayment = "awaiting_payment"
	StatusConfirmed       = "confirmed"
	StatusCheckedIn       = "checked_in"
	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
	StatusRefunded        = "refunded"
)

// Waitlist entry statuses.
const (
	WaitlistWaiting  = "waiting"
	WaitlistNotified = "notified"
	WaitlistSeated   = "seated"
	WaitlistExpired  = "expired"
)

// Payment event kinds as delivered by the provider webhook.
const (
	EventKindSucceeded = "succeeded"
	EventKindFailed    = "failed"
	EventKindRefunded  = "refunded"
)

const (
	// DefaultHoldTTL is how long an unpaid hold keeps its slot.
	DefaultHoldTTL = 15 * time.Minute

	// DefaultWaitlistTTL is how long a waitlist entry stays actionable.
	DefaultWaitlistTTL = 24 * time.Hour

	// DefaultSweepBatchSize caps how many stale rows one sweep processes.
	DefaultSweepBatchSize = 100
)
