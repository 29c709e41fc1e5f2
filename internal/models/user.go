package models

import "time"

type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Password         string     `json:"-"`
	IsStaff          bool       `json:"is_staff"`
	AccountExpiresAt *time.Time `json:"account_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Expired reports whether a time-limited account has lapsed.
func (u User) Expired(now time.Time) bool {
	return u.AccountExpiresAt != nil && now.After(*u.AccountExpiresAt)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
