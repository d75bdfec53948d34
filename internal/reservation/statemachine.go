package reservation

import (
	"errors"
	"fmt"

	"karabook/internal/models"
)

// ErrInvalidTransition is returned when the requested target is not
// reachable from the current status. The reservation is left unchanged.
var ErrInvalidTransition = errors.New("invalid reservation transition")

// ErrUnknownEventKind marks a payment notification kind the lifecycle
// has no mapping for.
var ErrUnknownEventKind = errors.New("unknown payment event kind")

// transitions lists the lawful targets per source status. Terminal
// statuses (completed, cancelled, refunded) have no outgoing edges.
var transitions = map[string][]string{
	models.StatusPending:         {models.StatusAwaitingPayment, models.StatusCancelled},
	models.StatusAwaitingPayment: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:       {models.StatusCheckedIn, models.StatusRefunded},
	models.StatusCheckedIn:       {models.StatusCompleted, models.StatusRefunded},
	models.StatusCompleted:       {},
	models.StatusCancelled:       {},
	models.StatusRefunded:        {},
}

// Step validates a transition request. It returns noop=true when the
// reservation already sits at the target (idempotent success, not an
// error) and ErrInvalidTransition for any edge the table does not list.
func Step(from, to string) (noop bool, err error) {
	if _, ok := transitions[from]; !ok {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if from == to {
		return true, nil
	}
	for _, target := range transitions[from] {
		if target == to {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// IsKnownStatus reports whether s is part of the lifecycle at all.
func IsKnownStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// TriggerForEventKind maps a payment notification kind to the target
// status it drives the reservation toward.
func TriggerForEventKind(kind string) (string, error) {
	switch kind {
	case models.EventKindSucceeded:
		return models.StatusConfirmed, nil
	case models.EventKindFailed:
		return models.StatusCancelled, nil
	case models.EventKindRefunded:
		return models.StatusRefunded, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
}
