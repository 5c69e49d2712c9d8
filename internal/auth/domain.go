package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents an account able to sign in to one company.
type User struct {
	ID           int64     `json:"id"`
	CompanyID    int64     `json:"company_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Claims is the bearer token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	CompanyID int64  `json:"company_id"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// NewUser describes an account to provision.
type NewUser struct {
	CompanyID int64  `validate:"required,gt=0"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8"`
	FullName  string
	Role      string `validate:"required,oneof=admin manager accountant sales user readonly"`
}
