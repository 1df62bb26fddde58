package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that miss. Callers treat it as
// "no data", not as a failure.
var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process maps (testing / throwaway runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is a person who has contacted the bot. Created on first contact;
// display fields and LastActive refresh on every inbound message.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Blocked   bool
	CreatedAt time.Time
	LastActive time.Time
}

// DisplayName renders the best human-readable name we have.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	if name == "" {
		name = "(unknown)"
	}
	return name
}

type Direction string

const (
	DirectionUserToAdmin Direction = "user_to_admin"
	DirectionAdminToUser Direction = "admin_to_user"
)

// Message is one relayed message, append-only.
// AdminID is set only for admin replies (Direction = admin_to_user).
type Message struct {
	UserID    int64
	AdminID   int64
	Text      string
	Direction Direction
	CreatedAt time.Time
}
