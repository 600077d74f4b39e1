package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// User is the local identity record mirroring an identity at the external
// provider. UID is the provider-assigned identifier.
type User struct {
	UID          string     `json:"uid" db:"uid"`
	Email        string     `json:"email" db:"email"`
	Username     string     `json:"username" db:"username"`
	Role         string     `json:"role" db:"role"`
	Organisation string     `json:"organisation" db:"organisation"`
	CreatedBy    *string    `json:"created_by,omitempty" db:"created_by"`
	FirstLogin   bool       `json:"first_login" db:"first_login"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer
}

type CreateUserInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token      string `json:"token"`
	FirstLogin bool   `json:"first_login"`
}
