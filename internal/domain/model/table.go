package model

import "time"

// Table mirrors physical table occupancy. A table is occupied iff it
// holds a live session reference.
type Table struct {
	ID        string
	Occupied  bool
	SessionID *string
	UpdatedAt time.Time
}
