package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an identity's role in the platform.
type Role string

const (
	// RoleAdmin is a registered account that hosts sessions and controls playback.
	RoleAdmin Role = "admin"
	// RoleGuest is an ephemeral participant joined into one session via join code.
	RoleGuest Role = "guest"
)

// User represents a registered admin account.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}
