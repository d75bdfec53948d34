package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"karabook/internal/events"
	"karabook/internal/models"
	"karabook/internal/repository"
	"karabook/internal/reservation"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentFixture(t *testing.T) (*serviceFixture, *PaymentEventService) {
	t.Helper()
	f := newServiceFixture(t)
	logger := zerolog.Nop()
	cache := repository.NewMemoryEventCache(time.Hour)
	return f, NewPaymentEventService(f.db, cache, f.bus, &logger)
}

func TestPaymentEventService_ApplyEvent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)

	var confirmed int
	f.bus.Subscribe(events.EventReservationConfirmed, func(e *events.Event) error {
		confirmed++
		return nil
	})

	outcome, err := svc.ApplyEvent(ctx, "evt_1", res.ID, models.EventKindSucceeded, `{}`)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, 1, confirmed)

	got, err := f.db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}

func TestPaymentEventService_Redelivery(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)

	outcome, err := svc.ApplyEvent(ctx, "evt_dup", res.ID, models.EventKindSucceeded, `{}`)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	confirmed, err := f.db.GetReservation(ctx, res.ID)
	require.NoError(t, err)

	// At-least-once delivery: the second arrival collapses to a
	// duplicate without a second state change.
	outcome, err = svc.ApplyEvent(ctx, "evt_dup", res.ID, models.EventKindSucceeded, `{}`)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, outcome)

	after, err := f.db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmed.Version, after.Version)
}

func TestPaymentEventService_FailedEventCancels(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)

	outcome, err := svc.ApplyEvent(ctx, "evt_fail", res.ID, models.EventKindFailed, `{}`)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	got, err := f.db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestPaymentEventService_LateSuccessAfterCancel(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, res.ID)
	require.NoError(t, err)

	var alerts []events.ReconciliationPayload
	f.bus.Subscribe(events.EventPaymentReconciliation, func(e *events.Event) error {
		var p events.ReconciliationPayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		alerts = append(alerts, p)
		return nil
	})

	// The provider's succeeded notification lands after the hold was
	// cancelled. It must not resurrect the reservation.
	_, err = svc.ApplyEvent(ctx, "evt_late", res.ID, models.EventKindSucceeded, `{}`)
	assert.ErrorIs(t, err, reservation.ErrInvalidTransition)

	got, err := f.db.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	require.Len(t, alerts, 1)
	assert.Equal(t, "evt_late", alerts[0].ProviderEventID)
	assert.Equal(t, models.StatusCancelled, alerts[0].CurrentStatus)

	// The rejection is recorded in the reconciliation backlog.
	backlog, err := svc.UnappliedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "evt_late", backlog[0].ProviderEventID)

	// Redelivery of the rejected event dedups via the ledger; no second
	// alert fires from the transition path.
	outcome, err := svc.ApplyEvent(ctx, "evt_late", res.ID, models.EventKindSucceeded, `{}`)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, outcome)
	assert.Len(t, alerts, 1)
}

func TestPaymentEventService_UnknownKind(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.createRequest())
	require.NoError(t, err)

	_, err = svc.ApplyEvent(ctx, "evt_odd", res.ID, "chargeback", `{}`)
	assert.ErrorIs(t, err, reservation.ErrUnknownEventKind)

	// Nothing recorded: an unmapped kind never reaches the ledger.
	backlog, err := svc.UnappliedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestPaymentEventService_RequiresEventID(t *testing.T) {
	_, svc := newPaymentFixture(t)

	_, err := svc.ApplyEvent(context.Background(), "", 1, models.EventKindSucceeded, `{}`)
	assert.Error(t, err)
}
