package model

import (
	"time"

	"github.com/google/uuid"
)

// User role constants
const (
	UserRoleAdmin  = "admin"
	UserRoleClient = "client"
)

// User status constants
const (
	UserStatusPending  = "pending"
	UserStatusVerified = "verified"
	UserStatusInactive = "inactive"
)

// User represents a portal user, either an agency admin or a creator client.
type User struct {
	Base
	Email           string     `json:"email" db:"email"`
	Name            string     `json:"name" db:"name"`
	Password        string     `json:"password,omitempty" db:"-"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	Phone           *string    `json:"phone" db:"phone"`
	Role            string     `json:"role" db:"role"`
	Status          string     `json:"status" db:"status"`
	Bio             *string    `json:"bio" db:"bio"`
	AvatarURL       *string    `json:"avatar_url" db:"avatar_url"`
	Onboarded       bool       `json:"onboarded" db:"onboarded"`
	VerifiedAt      *time.Time `json:"verified_at" db:"verified_at"`
	StripeCustomer  *string    `json:"-" db:"stripe_customer_id"`
	LastLoginAt     *time.Time `json:"last_login_at" db:"last_login_at"`
	Timezone        string     `json:"timezone" db:"timezone"`
	NotifyByDefault string     `json:"default_notification_method" db:"default_notification_method"`
}

// RegisterRequest represents client self-registration parameters
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone"`
}

// UpdateUserRequest represents profile update parameters
type UpdateUserRequest struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
	Timezone  *string `json:"timezone"`
	Status    *string `json:"status" binding:"omitempty,oneof=pending verified inactive"`
}

// UserFilters represents user search parameters
type UserFilters struct {
	Role       string `json:"role" form:"role"`
	Status     string `json:"status" form:"status"`
	SearchTerm string `json:"search_term" form:"search_term"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Sanitized returns a copy safe for API responses.
func (u User) Sanitized() User {
	u.Password = ""
	u.PasswordHash = ""
	return u
}

// UserRef is the slim projection embedded in appointment and conversation payloads.
type UserRef struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	AvatarURL *string   `json:"avatar_url" db:"avatar_url"`
}
