package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Me returns the session state the server sees for this token.
func (s *Session) Me(ctx context.Context) (*SessionResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/auth/session", nil)
	if err != nil {
		return nil, err
	}

	var me SessionResponse
	if err := decodeJSON(resp, &me, http.StatusOK); err != nil {
		return nil, err
	}
	return &me, nil
}

// Logout revokes the access token on the server and ends the session. The
// session is closed even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout", nil)

	s.mu.Lock()
	s.closed = true
	s.accessToken, s.refreshToken = "", ""
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// GetUser fetches one account. Users may fetch themselves; others need ADMIN.
func (s *Session) GetUser(ctx context.Context, userID string) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns one page of accounts (ADMIN and above).
func (s *Session) ListUsers(ctx context.Context, limit, offset int) (*UserListResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page UserListResponse
	if err := decodeJSON(resp, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateUser changes a name or role.
func (s *Session) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) (*UserResponse, error) {
	if errs := req.Validate(); errs != nil {
		return nil, NewValidationError(errs)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(userID), req)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser soft-deletes an account.
func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// AnalyticsSummary returns traffic figures for the window, such as "24h" or
// "7d". An empty window uses the server default (ADMIN and above).
func (s *Session) AnalyticsSummary(ctx context.Context, window string) (*AnalyticsSummaryResponse, error) {
	path := "/v1/analytics/summary"
	if window != "" {
		path += "?window=" + url.QueryEscape(window)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var sum AnalyticsSummaryResponse
	if err := decodeJSON(resp, &sum, http.StatusOK); err != nil {
		return nil, err
	}
	return &sum, nil
}
