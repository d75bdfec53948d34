package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"karabook/internal/models"
	"karabook/internal/reservation"
)

const reservationColumns = `r.id, r.room_id, m.name, r.guest_name, r.guest_phone, r.party_size,
	r.start_time, r.end_time, r.status, r.payment_intent_id, r.amount_cents,
	r.created_at, r.updated_at, r.version`

type reservationScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row reservationScanner) (*models.Reservation, error) {
	var r models.Reservation
	var startUnix, endUnix int64
	err := row.Scan(
		&r.ID, &r.RoomID, &r.RoomName, &r.GuestName, &r.GuestPhone, &r.PartySize,
		&startUnix, &endUnix, &r.Status, &r.PaymentIntentID, &r.AmountCents,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.StartTime = time.Unix(startUnix, 0).UTC()
	r.EndTime = time.Unix(endUnix, 0).UTC()
	return &r, nil
}

// AllocateReservation atomically checks for overlap and inserts a new
// pending reservation. The overlap predicate uses half-open ranges, so
// a booking ending exactly when another starts never conflicts. Both
// steps run in one immediate transaction: SQLite holds the write lock
// from BEGIN, so no concurrent caller can interleave between the check
// and the insert.
func (db *DB) AllocateReservation(ctx context.Context, res *models.Reservation) error {
	if !res.EndTime.After(res.StartTime) {
		return ErrInvalidTimeRange
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin allocate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM rooms WHERE id = ?`, res.RoomID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if !active {
		return ErrRoomInactive
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE room_id = ?
			  AND status IN (?, ?, ?, ?)
			  AND start_time < ?
			  AND end_time > ?
		)`,
		res.RoomID,
		models.StatusPending, models.StatusAwaitingPayment, models.StatusConfirmed, models.StatusCheckedIn,
		res.EndTime.Unix(), res.StartTime.Unix(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if exists {
		return ErrTimeConflict
	}

	now := db.now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			room_id, guest_name, guest_phone, party_size,
			start_time, end_time, status, payment_intent_id, amount_cents,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, 1)`,
		res.RoomID, res.GuestName, res.GuestPhone, res.PartySize,
		res.StartTime.Unix(), res.EndTime.Unix(), models.StatusPending, res.AmountCents,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocate tx: %w", err)
	}

	res.ID = id
	res.Status = models.StatusPending
	res.PaymentIntentID = ""
	res.CreatedAt = now
	res.UpdatedAt = now
	res.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations r JOIN rooms m ON r.room_id = m.id
		WHERE r.id = ?`, id)

	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// TransitionStatus applies a guarded state transition under the version
// token. It re-reads the row inside the transaction, so the guard holds
// at commit time, not at the caller's read time. A request for an
// already-reached target is an idempotent no-op success.
func (db *DB) TransitionStatus(ctx context.Context, id, fromVersion int64, target string) (noop bool, err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	noop, err = transitionInTx(ctx, tx, db.now(), id, fromVersion, target)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition tx: %w", err)
	}
	return noop, nil
}

func transitionInTx(ctx context.Context, tx *sql.Tx, now time.Time, id, fromVersion int64, target string) (bool, error) {
	var current string
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT status, version FROM reservations WHERE id = ?`, id).
		Scan(&current, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read reservation: %w", err)
	}

	noop, err := reservation.Step(current, target)
	if err != nil {
		return false, err
	}
	if noop {
		return true, nil
	}
	if version != fromVersion {
		return false, ErrConcurrentModification
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		target, now, id, fromVersion, current,
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, ErrConcurrentModification
	}
	return false, nil
}

// AttachPaymentIntent sets the set-once payment_intent_id and advances
// pending to awaiting_payment in one guarded update. Re-attaching the
// same intent id is an idempotent no-op; a different id is rejected.
func (db *DB) AttachPaymentIntent(ctx context.Context, id, fromVersion int64, intentID string) error {
	if intentID == "" {
		return fmt.Errorf("empty intent id")
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status, existing string
	var version int64
	err = tx.QueryRowContext(ctx, `SELECT status, payment_intent_id, version FROM reservations WHERE id = ?`, id).
		Scan(&status, &existing, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read reservation: %w", err)
	}

	if existing != "" {
		if existing == intentID {
			return tx.Commit()
		}
		return ErrIntentAlreadySet
	}

	if _, err := reservation.Step(status, models.StatusAwaitingPayment); err != nil {
		return err
	}
	if version != fromVersion {
		return ErrConcurrentModification
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET payment_intent_id = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND payment_intent_id = ''`,
		intentID, models.StatusAwaitingPayment, db.now(), id, fromVersion,
	)
	if err != nil {
		return fmt.Errorf("attach intent: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	return tx.Commit()
}

// GetExpiredHolds returns reservations still holding a slot without
// payment past the cutoff. Candidates only: the cancel itself re-checks
// status under the version guard.
func (db *DB) GetExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*models.Reservation, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations r JOIN rooms m ON r.room_id = m.id
		WHERE r.status IN (?, ?) AND r.updated_at <= ?
		ORDER BY r.updated_at ASC
		LIMIT ?`,
		models.StatusPending, models.StatusAwaitingPayment, cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired holds: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired hold: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ListReservationsInRange returns reservations whose range intersects
// [start, end), newest rooms first, for availability and reporting.
func (db *DB) ListReservationsInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations r JOIN rooms m ON r.room_id = m.id
		WHERE r.start_time < ? AND r.end_time > ?
		ORDER BY r.room_id, r.start_time`,
		end.Unix(), start.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations in range: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// RoomBusyRanges returns the active reservations for one room that
// intersect [start, end), for the availability endpoint.
func (db *DB) RoomBusyRanges(ctx context.Context, roomID int64, start, end time.Time) ([]*models.Reservation, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations r JOIN rooms m ON r.room_id = m.id
		WHERE r.room_id = ?
		  AND r.status IN (?, ?, ?, ?)
		  AND r.start_time < ? AND r.end_time > ?
		ORDER BY r.start_time`,
		roomID,
		models.StatusPending, models.StatusAwaitingPayment, models.StatusConfirmed, models.StatusCheckedIn,
		end.Unix(), start.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query busy ranges: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan busy range: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
