package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller as supplied by the identity provider.
type Identity struct {
	UserID int64
	Role   string
	Email  string
	Name   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
