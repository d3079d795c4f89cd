package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/keystone/pkg/httpx"
)

// Error codes carried in the "code" field of every error body. The generic
// ones are shared with pkg/httpx middleware.
const (
	ErrorCodeBadRequest         = httpx.CodeBadRequest
	ErrorCodeUnauthorized       = httpx.CodeUnauthorized
	ErrorCodeForbidden          = httpx.CodeForbidden
	ErrorCodeNotFound           = httpx.CodeNotFound
	ErrorCodeConflict           = httpx.CodeConflict
	ErrorCodeRateLimited        = httpx.CodeRateLimited
	ErrorCodeInternal           = httpx.CodeInternal
	ErrorCodeValidationFailed   = "VALIDATION_FAILED"
	ErrorCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrorCodeAccountLocked      = "ACCOUNT_LOCKED"
	ErrorCodeInvalidToken       = "INVALID_TOKEN"
	ErrorCodeUnavailable        = "SERVICE_UNAVAILABLE"
)

// APIError is the JSON error body of every failed request. The server writes
// it with WriteError; the client returns it from every method.
type APIError struct {
	// StatusCode is the HTTP status the error is written with.
	StatusCode int `json:"-"`

	Code    string `json:"code"`
	Message string `json:"message,omitempty"`

	// Details maps request fields to problems for VALIDATION_FAILED.
	Details map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is matches on status and code, so a parsed client-side error compares
// equal to the predefined value the server wrote.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithMessage returns a copy of e with a different message.
func (e *APIError) WithMessage(msg string) *APIError {
	cp := *e
	cp.Message = msg
	return &cp
}

// NewValidationError reports per-field problems.
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeValidationFailed,
		Message:    "request validation failed",
		Details:    details,
	}
}

var (
	ErrInvalidBody = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeBadRequest,
		Message:    "invalid request body",
	}

	ErrUnauthorized = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeUnauthorized,
		Message:    "authentication required",
	}

	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidCredentials,
		Message:    "invalid email or password",
	}

	// ErrAccountLocked is returned once the failed login limit is reached.
	// A password reset unlocks the account.
	ErrAccountLocked = &APIError{
		StatusCode: http.StatusLocked,
		Code:       ErrorCodeAccountLocked,
		Message:    "account locked after too many failed logins",
	}

	// ErrInvalidToken is returned for refresh, verification and reset tokens
	// that are unknown, expired or already used.
	ErrInvalidToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidToken,
		Message:    "token is invalid or expired",
	}

	ErrForbidden = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeForbidden,
		Message:    "insufficient role",
	}

	ErrNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeNotFound,
		Message:    "not found",
	}

	ErrEmailTaken = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeConflict,
		Message:    "email already registered",
	}

	ErrAlreadyBootstrapped = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeConflict,
		Message:    "system already bootstrapped",
	}

	// ErrUnavailable is returned when session state could not be persisted.
	ErrUnavailable = &APIError{
		StatusCode: http.StatusServiceUnavailable,
		Code:       ErrorCodeUnavailable,
		Message:    "service temporarily unavailable",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeInternal,
		Message:    "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not JSON error objects keep the status and carry the raw text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
