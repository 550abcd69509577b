package models

import "time"

// Camera is a read-mostly reference entity owned by the backend.
type Camera struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	Archived  bool      `json:"archived" db:"archived"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
}
