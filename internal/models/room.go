package models

import "time"

// Room is a bookable karaoke room. Identity is immutable; the catalog
// that mutates capacity and active flags lives outside this service.
type Room struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Capacity  int       `json:"capacity" yaml:"capacity"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}
