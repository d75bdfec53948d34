package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"karabook/internal/models"
)

func (db *DB) CreateWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	now := db.now()
	if entry.RequestedAt.IsZero() {
		entry.RequestedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.RequestedAt.Add(models.DefaultWaitlistTTL)
	}
	entry.Status = models.WaitlistWaiting

	result, err := db.db.ExecContext(ctx, `
		INSERT INTO waitlist (guest_name, guest_phone, party_size, status, requested_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.GuestName, entry.GuestPhone, entry.PartySize, entry.Status,
		entry.RequestedAt.UTC(), entry.ExpiresAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("waitlist insert id: %w", err)
	}
	entry.ID = id
	entry.UpdatedAt = now
	return nil
}

func (db *DB) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	var notifiedAt sql.NullTime
	err := db.db.QueryRowContext(ctx, `
		SELECT id, guest_name, guest_phone, party_size, status, requested_at, expires_at, notified_at, updated_at
		FROM waitlist WHERE id = ?`, id).
		Scan(&e.ID, &e.GuestName, &e.GuestPhone, &e.PartySize, &e.Status,
			&e.RequestedAt, &e.ExpiresAt, &notifiedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	if notifiedAt.Valid {
		e.NotifiedAt = notifiedAt.Time
	}
	return &e, nil
}

// TransitionWaitlistEntry moves an entry between waitlist states with a
// status guard baked into the update, so overlapping sweeps or repeated
// staff actions are no-ops instead of errors.
func (db *DB) TransitionWaitlistEntry(ctx context.Context, id int64, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("no source statuses")
	}

	query := `UPDATE waitlist SET status = ?, updated_at = ?`
	args := []any{to, db.now()}
	if to == models.WaitlistNotified {
		query += `, notified_at = ?`
		args = append(args, db.now())
	}
	query += ` WHERE id = ? AND status IN (?` + repeatPlaceholder(len(from)-1) + `)`
	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	result, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition waitlist entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

// GetExpiredWaitlist returns waiting or notified entries past their
// expiry, oldest first.
func (db *DB) GetExpiredWaitlist(ctx context.Context, cutoff time.Time, limit int) ([]*models.WaitlistEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, guest_name, guest_phone, party_size, status, requested_at, expires_at, notified_at, updated_at
		FROM waitlist
		WHERE status IN (?, ?) AND expires_at <= ?
		ORDER BY requested_at ASC LIMIT ?`,
		models.WaitlistWaiting, models.WaitlistNotified, cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired waitlist: %w", err)
	}
	defer rows.Close()

	var out []*models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		var notifiedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.GuestName, &e.GuestPhone, &e.PartySize, &e.Status,
			&e.RequestedAt, &e.ExpiresAt, &notifiedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		if notifiedAt.Valid {
			e.NotifiedAt = notifiedAt.Time
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListWaitlist returns entries in FIFO order, optionally only active
// (waiting or notified) ones.
func (db *DB) ListWaitlist(ctx context.Context, activeOnly bool) ([]*models.WaitlistEntry, error) {
	query := `
		SELECT id, guest_name, guest_phone, party_size, status, requested_at, expires_at, notified_at, updated_at
		FROM waitlist`
	var args []any
	if activeOnly {
		query += ` WHERE status IN (?, ?)`
		args = append(args, models.WaitlistWaiting, models.WaitlistNotified)
	}
	query += ` ORDER BY requested_at ASC`

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()

	var out []*models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		var notifiedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.GuestName, &e.GuestPhone, &e.PartySize, &e.Status,
			&e.RequestedAt, &e.ExpiresAt, &notifiedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		if notifiedAt.Valid {
			e.NotifiedAt = notifiedAt.Time
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
