package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AuthLoginRequest is the payload for POST /v1/auth/login.
type AuthLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMeResponse describes the caller identity.
type AuthMeResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role,omitempty"`
	AuthType      string `json:"auth_type,omitempty"`
}

// AdminUserCreateRequest provisions a user.
type AdminUserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// AdminUserSetDisabledRequest toggles a user's disabled flag.
type AdminUserSetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// AdminUser is the admin view of a user.
type AdminUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthLoginResponse carries the session token for non-browser clients.
type AuthLoginResponse struct {
	AuthMeResponse
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
