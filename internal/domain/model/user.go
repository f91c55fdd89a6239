package model

import "time"

// User carries only what billing and result attribution need.
type User struct {
	ID           string
	Credits      int
	RegisteredAt time.Time
}
