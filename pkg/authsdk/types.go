package authsdk

import "time"

// ============================================================================
// Authentication
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse 1"`
}

// RefreshRequest is the body of POST /v1/auth/refresh. When RefreshToken is
// empty the server falls back to the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse carries a freshly minted access/refresh pair.
type TokenResponse struct {
	TokenType             string    `json:"token_type" example:"Bearer"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	ExpiresIn             int       `json:"expires_in" example:"900"` // seconds until the access token expires
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`

	// User is set by login and refresh; omitted where the caller already knows it.
	User *UserResponse `json:"user,omitempty"`
}

// SessionResponse is returned from GET /v1/auth/session. It reports what the
// authenticator decided for this request, including a transparent renewal.
type SessionResponse struct {
	Authenticated  bool           `json:"authenticated"`
	State          string         `json:"state" example:"AUTHENTICATED"`
	Reason         string         `json:"reason,omitempty" example:"no_credentials"`
	Transport      string         `json:"transport" example:"cookie"`
	TokenRefreshed bool           `json:"token_refreshed"`
	User           *UserResponse  `json:"user,omitempty"`
	Renewed        *TokenResponse `json:"renewed,omitempty"`
}

// ============================================================================
// Accounts
// ============================================================================

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Name     string `json:"name" example:"Alice"`
	Password string `json:"password" example:"correct horse 1"`
}

// VerifyEmailRequest is the body of POST /v1/auth/verify-email.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ForgotPasswordRequest is the body of POST /v1/auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email" example:"alice@example.com"`
}

// ResetPasswordRequest is the body of POST /v1/auth/password/reset.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            string     `json:"id" example:"01J8Z3K4W5X6Y7Z8A9B0C1D2E3"`
	Email         string     `json:"email" example:"alice@example.com"`
	Name          string     `json:"name" example:"Alice"`
	Role          string     `json:"role" example:"USER"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	LastActiveAt  *time.Time `json:"last_active_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// UserListResponse is one page of GET /v1/users.
type UserListResponse struct {
	Users  []UserResponse `json:"users"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// UpdateUserRequest is the body of PATCH /v1/users/{id}. Nil fields are left
// unchanged. Role changes need ADMIN or above.
type UpdateUserRequest struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty" example:"MODERATOR"`
}

// ============================================================================
// Analytics
// ============================================================================

// AnalyticsSummaryResponse is returned from GET /v1/analytics/summary.
type AnalyticsSummaryResponse struct {
	Window        string           `json:"window" example:"24h0m0s"`
	Since         time.Time        `json:"since"`
	Until         time.Time        `json:"until"`
	TotalRequests int64            `json:"total_requests"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
	ActiveUsers   int64            `json:"active_users"`
	StatusClasses map[string]int64 `json:"status_classes"`
	AuthStates    map[string]int64 `json:"auth_states"`
	TopRoutes     []RouteStat      `json:"top_routes"`
	Users         int              `json:"users"`
	Runtime       RuntimeStats     `json:"runtime"`
	Live          LiveStats        `json:"live"`
	LogsDropped   int64            `json:"logs_dropped"`
}

type RouteStat struct {
	Method        string  `json:"method"`
	Route         string  `json:"route"`
	Count         int64   `json:"count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type RuntimeStats struct {
	Goroutines        float64 `json:"goroutines"`
	HeapAllocBytes    float64 `json:"heap_alloc_bytes"`
	ResidentBytes     float64 `json:"resident_bytes"`
	OpenFDs           float64 `json:"open_fds"`
	WebSocketSessions float64 `json:"websocket_sessions"`
}

type LiveStats struct {
	Subscribers   int   `json:"subscribers"`
	DroppedEvents int64 `json:"dropped_events"`
}

// ============================================================================
// System
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Status indicates the overall health status (ok, degraded, unavailable)
	Status string `json:"status" example:"ok"`

	// Uptime shows how long the service has been running (only in livez)
	Uptime string `json:"uptime,omitempty" example:"1h2m3s"`

	// Version is the build version (only in livez)
	Version string `json:"version,omitempty" example:"1.0.0"`

	// Checks contains individual component health checks (only in readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks contains individual component health status.
type HealthChecks struct {
	// Database health status
	Database string `json:"database" example:"ok"`

	// Tokens reports whether the token codec can sign and verify.
	Tokens string `json:"tokens" example:"ok"`
}

// BootstrapRequest creates the first SYSADMIN account on an empty system.
type BootstrapRequest struct {
	AdminEmail    string `json:"admin_email" example:"root@example.com"`
	AdminName     string `json:"admin_name" example:"Root"`
	AdminPassword string `json:"admin_password"`
}

// BootstrapResponse is returned after a successful bootstrap.
type BootstrapResponse struct {
	AdminUserID string `json:"admin_user_id"`
	AdminEmail  string `json:"admin_email"`
}
