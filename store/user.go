package store

import "time"

// User is a directory entry. Users are never updated or deleted.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserData holds the fields needed to create a user.
// A zero CreatedAt is replaced with the current time.
type UserData struct {
	Email     string
	Name      string
	CreatedAt time.Time
}

// CreatedAtOrNow returns CreatedAt in UTC, or the current time if unset.
func (d UserData) CreatedAtOrNow() time.Time {
	if d.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return d.CreatedAt.UTC()
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
