package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

// writeServiceError maps a service or session error onto its API error.
// Anything unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed",
			slog.String("route", r.Pattern), slog.Any("error", err))
	}
	apiErr.WriteError(w)
}

func apiError(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrAccountLocked):
		return authsdk.ErrAccountLocked
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, session.ErrRefreshRejected):
		return authsdk.ErrInvalidToken
	case errors.Is(err, service.ErrEmailTaken):
		return authsdk.ErrEmailTaken
	case errors.Is(err, service.ErrInvalidEmail):
		return authsdk.NewValidationError(map[string]string{"email": "must be a valid email address"})
	case errors.Is(err, service.ErrWeakPassword):
		return authsdk.NewValidationError(map[string]string{"password": "must be 8-128 characters with a letter and a digit"})
	case errors.Is(err, service.ErrInvalidInput):
		return authsdk.ErrInvalidBody.WithMessage(err.Error())
	case errors.Is(err, service.ErrForbidden):
		return authsdk.ErrForbidden
	case errors.Is(err, service.ErrNotFound):
		return authsdk.ErrNotFound
	case errors.Is(err, service.ErrBootstrapAlready):
		return authsdk.ErrAlreadyBootstrapped
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		return authsdk.ErrUnauthorized.WithMessage("invalid bootstrap token")
	case errors.Is(err, service.ErrBootstrapDisabled):
		return authsdk.ErrNotFound.WithMessage("bootstrap endpoint is not enabled")
	case errors.Is(err, session.ErrPersistence):
		return authsdk.ErrUnavailable
	default:
		return authsdk.ErrServerError
	}
}

// decodeBody reads a JSON request body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		authsdk.ErrInvalidBody.WriteError(w)
		return false
	}
	return true
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role.String(),
		EmailVerified: u.EmailVerified(),
		LastLoginAt:   u.LastLoginAt,
		LastActiveAt:  u.LastActiveAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func tokenResponse(p *session.Pair, now time.Time) *authsdk.TokenResponse {
	return &authsdk.TokenResponse{
		TokenType:             "Bearer",
		AccessToken:           p.Access.Raw,
		AccessTokenExpiresAt:  p.Access.ExpiresAt,
		ExpiresIn:             int(p.Access.ExpiresAt.Sub(now).Seconds()),
		RefreshToken:          p.Refresh.Raw,
		RefreshTokenExpiresAt: p.Refresh.ExpiresAt,
	}
}

func summaryResponse(s service.Summary) authsdk.AnalyticsSummaryResponse {
	routes := make([]authsdk.RouteStat, 0, len(s.Traffic.TopRoutes))
	for _, rc := range s.Traffic.TopRoutes {
		routes = append(routes, authsdk.RouteStat{
			Method:        rc.Method,
			Route:         rc.Route,
			Count:         rc.Count,
			AvgDurationMS: rc.AvgDurationMS,
		})
	}
	return authsdk.AnalyticsSummaryResponse{
		Window:        s.Window.String(),
		Since:         s.Traffic.Since,
		Until:         s.Traffic.Until,
		TotalRequests: s.Traffic.TotalRequests,
		AvgDurationMS: s.Traffic.AvgDurationMS,
		ActiveUsers:   s.Traffic.ActiveUsers,
		StatusClasses: s.Traffic.StatusClasses,
		AuthStates:    s.Traffic.AuthStates,
		TopRoutes:     routes,
		Users:         s.Users,
		Runtime: authsdk.RuntimeStats{
			Goroutines:        s.Runtime.Goroutines,
			HeapAllocBytes:    s.Runtime.HeapAllocBytes,
			ResidentBytes:     s.Runtime.ResidentBytes,
			OpenFDs:           s.Runtime.OpenFDs,
			WebSocketSessions: s.Runtime.WebSocketSessions,
		},
		Live: authsdk.LiveStats{
			Subscribers:   s.Live.Subscribers,
			DroppedEvents: s.Live.DroppedEvents,
		},
		LogsDropped: s.LogsLost,
	}
}
