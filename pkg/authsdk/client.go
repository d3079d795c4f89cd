package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// AccessTokenHeader carries a transparently renewed access token on
// responses from cookie-authenticated routes.
const AccessTokenHeader = "X-Access-Token"

// SDKClient is a client for the keystone API. It provides the unauthenticated
// operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// RefreshLeeway is how long before access token expiry a Session renews
	// it. Default: 30s.
	RefreshLeeway time.Duration
}

// NewSDKClient creates a new keystone API client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		RefreshLeeway: 30 * time.Second,
	}
}

// Login exchanges an email and password for an authenticated Session.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", LoginRequest{
		Email:    email,
		Password: password,
	}, nil)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &tokens), nil
}

// AuthenticateWithRefreshToken creates a Session from a stored refresh token.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens creates a Session from tokens obtained elsewhere. The
// access token expiry is read from its exp claim.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    c.renewAt(tokenExpiry(accessToken)),
	}
}

func (c *SDKClient) renewAt(exp time.Time) time.Time {
	if exp.IsZero() {
		return exp
	}
	return exp.Add(-c.RefreshLeeway)
}

// ============================================================================
// Unauthenticated account operations
// ============================================================================

// Refresh exchanges a refresh token for a new pair.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Register creates an account and mails a verification link. Login works
// before the address is verified.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/register", req, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail redeems the token from the verification mail.
func (c *SDKClient) VerifyEmail(ctx context.Context, token string) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/verify-email", VerifyEmailRequest{Token: token}, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ForgotPassword asks for a reset mail. It succeeds for unknown addresses too.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/password/forgot", ForgotPasswordRequest{Email: email}, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ResetPassword sets a new password with a reset token. The account is
// unlocked and outstanding access tokens are revoked.
func (c *SDKClient) ResetPassword(ctx context.Context, token, password string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/password/reset", ResetPasswordRequest{
		Token:    token,
		Password: password,
	}, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ============================================================================
// System
// ============================================================================

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service is ready. A 503 still decodes, so the
// caller can see which check failed.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	expected := http.StatusOK
	if resp.StatusCode == http.StatusServiceUnavailable {
		expected = http.StatusServiceUnavailable
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, expected); err != nil {
		return nil, err
	}
	return &health, nil
}
