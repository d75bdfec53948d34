package database

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeConflict is returned by AllocateReservation when another
	// active reservation overlaps the requested range. No row is created.
	ErrTimeConflict = errors.New("time slot already booked")

	// ErrInvalidTimeRange rejects zero-length or inverted ranges before
	// any storage is touched.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	// ErrConcurrentModification signals a version-token mismatch on a
	// guarded update. The caller must re-read and retry.
	ErrConcurrentModification = errors.New("reservation was modified concurrently")

	// ErrDuplicateEvent signals that a provider event id already sits in
	// the dedup ledger. Not a failure: the notification was redelivered.
	ErrDuplicateEvent = errors.New("payment event already recorded")

	// ErrIntentAlreadySet guards the set-once payment_intent_id column.
	ErrIntentAlreadySet = errors.New("reservation already has a payment intent")

	// ErrRoomInactive rejects allocation against a deactivated room.
	ErrRoomInactive = errors.New("room is not active")
)
