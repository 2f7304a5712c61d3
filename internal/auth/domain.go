package auth

import "time"

// Token types carried in the typ claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// User represents an account that can sign in to the API.
type User struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	Name                string     `db:"name"`
	PasswordHash        string     `db:"password_hash"`
	Role                string     `db:"role"`
	Permissions         []string   `db:"permissions"`
	IsActive            bool       `db:"is_active"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// LockedAt reports whether the lockout window is still open at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LoginState is the persisted outcome of a login attempt.
type LoginState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile is the public view of the signed-in user.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Account is the administrative view of a user.
type Account struct {
	Profile
	IsActive       bool `json:"is_active"`
	Locked         bool `json:"locked"`
	FailedAttempts int  `json:"failed_login_attempts"`
}

// NewUser carries the fields needed to provision an account.
type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}
