package domain

import "time"

// ============================================================
// Auth gateway - request / response types
// ============================================================

// SignupRequest is the body for POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse confirms identity creation. Account provisioning happens
// lazily on the first banking read, not here.
type SignupResponse struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session pair: a short-lived JWT access token and
// an opaque rotating refresh token.
type LoginResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// CheckLockoutRequest is the body for POST /auth/check-lockout.
type CheckLockoutRequest struct {
	Email string `json:"email"`
}

// CheckLockoutResponse reports whether logins for the email are currently
// rejected. LockoutEndTime is only set while locked.
type CheckLockoutResponse struct {
	IsLockedOut    bool       `json:"isLockedOut"`
	LockoutEndTime *time.Time `json:"lockoutEndTime,omitempty"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ============================================================
// Lockout state
// ============================================================

// LockoutRecord is the per-identity failed-login state. LockoutEndTime nil
// means no active lock; an expired LockoutEndTime counts as unlocked and is
// cleared lazily on the next login attempt.
type LockoutRecord struct {
	Email          string     `json:"email"`
	FailedAttempts int        `json:"failed_attempts"`
	LockoutEndTime *time.Time `json:"lockout_end_time,omitempty"`
}

// Locked reports whether the record holds an unexpired lock at now.
func (r *LockoutRecord) Locked(now time.Time) bool {
	return r.LockoutEndTime != nil && now.Before(*r.LockoutEndTime)
}

// ============================================================
// Refresh tokens
// ============================================================

// RefreshToken is the stored form of an issued refresh token. Only the
// sha256 hash of the opaque token is persisted. Email rides along so token
// rotation can re-sign access tokens without a user lookup.
type RefreshToken struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// Identity is what the identity provider returns on successful signup or
// credential verification.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}
