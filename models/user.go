package models

import (
	"time"
)

// User represents an account that owns case workspaces
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	FirmName     *string   `json:"firm_name,omitempty"`
	APITokenHash string    `json:"-"` // bcrypt hash of the bearer token secret
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
