package reservation

import (
	"testing"

	"karabook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_ValidTransitions(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{models.StatusPending, models.StatusAwaitingPayment},
		{models.StatusPending, models.StatusCancelled},
		{models.StatusAwaitingPayment, models.StatusConfirmed},
		{models.StatusAwaitingPayment, models.StatusCancelled},
		{models.StatusConfirmed, models.StatusCheckedIn},
		{models.StatusConfirmed, models.StatusRefunded},
		{models.StatusCheckedIn, models.StatusCompleted},
		{models.StatusCheckedIn, models.StatusRefunded},
	}

	for _, tc := range cases {
		noop, err := Step(tc.from, tc.to)
		assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		assert.False(t, noop, "%s -> %s", tc.from, tc.to)
	}
}

func TestStep_InvalidTransitions(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{models.StatusPending, models.StatusConfirmed},
		{models.StatusPending, models.StatusCheckedIn},
		{models.StatusAwaitingPayment, models.StatusCheckedIn},
		{models.StatusConfirmed, models.StatusCancelled},
		{models.StatusCancelled, models.StatusConfirmed},
		{models.StatusCompleted, models.StatusCheckedIn},
		{models.StatusRefunded, models.StatusConfirmed},
	}

	for _, tc := range cases {
		_, err := Step(tc.from, tc.to)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestStep_SameStatusIsNoop(t *testing.T) {
	for _, status := range []string{
		models.StatusPending, models.StatusConfirmed, models.StatusCancelled,
	} {
		noop, err := Step(status, status)
		require.NoError(t, err)
		assert.True(t, noop)
	}
}

func TestStep_UnknownStatus(t *testing.T) {
	_, err := Step("draft", models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIsKnownStatus(t *testing.T) {
	assert.True(t, IsKnownStatus(models.StatusPending))
	assert.True(t, IsKnownStatus(models.StatusRefunded))
	assert.False(t, IsKnownStatus("draft"))
	assert.False(t, IsKnownStatus(""))
}

func TestTriggerForEventKind(t *testing.T) {
	target, err := TriggerForEventKind(models.EventKindSucceeded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, target)

	target, err = TriggerForEventKind(models.EventKindFailed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, target)

	target, err = TriggerForEventKind(models.EventKindRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, target)

	_, err = TriggerForEventKind("chargeback")
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}
