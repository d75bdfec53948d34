package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"karabook/internal/models"
)

// UpsertRoom syncs one catalog room into the store. The catalog itself
// is owned elsewhere; this keeps the local copy the allocator joins
// against.
func (db *DB) UpsertRoom(ctx context.Context, room *models.Room) error {
	now := db.now()
	result, err := db.db.ExecContext(ctx, `
		INSERT INTO rooms (name, capacity, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			capacity = excluded.capacity,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		room.Name, room.Capacity, room.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if room.ID == 0 {
		if id, err := result.LastInsertId(); err == nil && id != 0 {
			room.ID = id
		}
		// ON CONFLICT updates report the rowid of the last insert, which
		// may be stale; resolve by name to be sure.
		existing, err := db.GetRoomByName(ctx, room.Name)
		if err != nil {
			return err
		}
		room.ID = existing.ID
	}
	return nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return db.getRoom(ctx, `SELECT id, name, capacity, is_active, created_at, updated_at FROM rooms WHERE id = ?`, id)
}

func (db *DB) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return db.getRoom(ctx, `SELECT id, name, capacity, is_active, created_at, updated_at FROM rooms WHERE name = ?`, name)
}

func (db *DB) getRoom(ctx context.Context, query string, arg any) (*models.Room, error) {
	var room models.Room
	err := db.db.QueryRowContext(ctx, query, arg).
		Scan(&room.ID, &room.Name, &room.Capacity, &room.IsActive, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

func (db *DB) GetActiveRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, name, capacity, is_active, created_at, updated_at
		FROM rooms WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Capacity, &room.IsActive, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}
