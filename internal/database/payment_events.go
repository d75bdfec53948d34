package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"karabook/internal/models"

	"github.com/mattn/go-sqlite3"
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ApplyPaymentEvent inserts the event into the dedup ledger and applies
// the mapped state transition in one transaction.
//
// Outcomes:
//   - ErrDuplicateEvent: the provider event id was seen before; nothing
//     is re-run (at-least-once delivery collapsed to once).
//   - transitioned=true: ledger row committed applied=true and the
//     reservation moved to target.
//   - transitioned=false, nil error: the reservation already sat at
//     target; the ledger row still commits so a redelivery dedups.
//   - ErrInvalidTransition (wrapped): the reservation can no longer
//     accept this event (e.g. succeeded after an expired hold was
//     cancelled). The ledger row commits with applied=false as the
//     reconciliation record; the transition does not run.
//   - ErrConcurrentModification: a racing writer moved the row between
//     read and update. The whole transaction rolls back, so the
//     provider's redelivery retries from scratch.
func (db *DB) ApplyPaymentEvent(ctx context.Context, event *models.PaymentEvent, target string) (transitioned bool, err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin event tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := db.now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO payment_events (provider_event_id, reservation_id, kind, payload, applied, received_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		event.ProviderEventID, event.ReservationID, event.Kind, event.Payload, now,
	)
	if isUniqueViolation(err) {
		return false, ErrDuplicateEvent
	}
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}
	ledgerID, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("ledger insert id: %w", err)
	}

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM reservations WHERE id = ?`, event.ReservationID).
		Scan(&version)
	if err != nil {
		return false, fmt.Errorf("read reservation for event: %w", err)
	}

	noop, stepErr := transitionInTx(ctx, tx, now, event.ReservationID, version, target)
	if stepErr != nil {
		if errors.Is(stepErr, ErrConcurrentModification) {
			return false, stepErr
		}
		// Keep the ledger row (applied=false) as the durable witness of
		// a notification the lifecycle rejected, then surface the error
		// for reconciliation.
		if commitErr := tx.Commit(); commitErr != nil {
			return false, fmt.Errorf("commit rejected event: %w", commitErr)
		}
		event.ID = ledgerID
		event.Applied = false
		event.ReceivedAt = now
		return false, stepErr
	}

	if _, err := tx.ExecContext(ctx, `UPDATE payment_events SET applied = 1 WHERE id = ?`, ledgerID); err != nil {
		return false, fmt.Errorf("mark event applied: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit event tx: %w", err)
	}

	event.ID = ledgerID
	event.Applied = true
	event.ReceivedAt = now
	return !noop, nil
}

// GetPaymentEvent looks up a ledger row by provider event id.
func (db *DB) GetPaymentEvent(ctx context.Context, providerEventID string) (*models.PaymentEvent, error) {
	var e models.PaymentEvent
	err := db.db.QueryRowContext(ctx, `
		SELECT id, provider_event_id, reservation_id, kind, payload, applied, received_at
		FROM payment_events WHERE provider_event_id = ?`, providerEventID).
		Scan(&e.ID, &e.ProviderEventID, &e.ReservationID, &e.Kind, &e.Payload, &e.Applied, &e.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment event: %w", err)
	}
	return &e, nil
}

// ListUnappliedEvents returns ledger rows whose transition never
// committed, for the reconciliation report.
func (db *DB) ListUnappliedEvents(ctx context.Context, limit int) ([]*models.PaymentEvent, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, provider_event_id, reservation_id, kind, payload, applied, received_at
		FROM payment_events WHERE applied = 0
		ORDER BY received_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unapplied events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PaymentEvent, 0)
	for rows.Next() {
		var e models.PaymentEvent
		if err := rows.Scan(&e.ID, &e.ProviderEventID, &e.ReservationID, &e.Kind, &e.Payload, &e.Applied, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
