package graphql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/99designs/gqlgen/graphql"
	gqltransport "github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Values of extensions.code.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeBadRequest         = "BAD_REQUEST"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodeValidation         = "GRAPHQL_VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

var (
	errUnauthenticated       = errors.New("authentication required")
	errUnsupportedOperation  = errors.New("unsupported operation")
	errIntrospectionDisabled = fmt.Errorf("%w: introspection is disabled", errUnsupportedOperation)
	errSubscriptionOverHTTP  = fmt.Errorf("%w: subscriptions are served over WebSocket", errUnsupportedOperation)
)

func coded(e *gqlerror.Error, code string) *gqlerror.Error {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions["code"] = code
	return e
}

// presentError is the server's error presenter. Parse and validation errors
// come from gqlparser with no wrapped cause; resolver errors wrap one and are
// classified. Unexpected causes are logged and reported without detail.
func presentError(ctx context.Context, err error) *gqlerror.Error {
	e := graphql.DefaultErrorPresenter(ctx, err)
	if _, ok := e.Extensions["code"]; ok {
		return e
	}

	cause := e.Unwrap()
	if cause == nil {
		if e.Rule != "" {
			return coded(e, CodeValidation)
		}
		return coded(e, CodeBadRequest)
	}

	code, msg := classify(cause)
	if code == CodeInternal || code == CodeUnavailable {
		slogx.FromContext(ctx).Error("graphql resolver failed",
			slog.String("path", e.Path.String()), slog.Any("error", cause))
	}
	e.Message = msg
	return coded(e, code)
}

// recoverPanic turns a resolver panic into an internal error.
func recoverPanic(ctx context.Context, r any) error {
	slogx.FromContext(ctx).Error("graphql resolver panicked", slog.Any("panic", r))
	return fmt.Errorf("panic: %v", r)
}

// subscriptionError fails a subscription before its first event, so the
// client receives an error message for the operation instead of next.
func subscriptionError(ctx context.Context, err error) {
	gqltransport.AddSubscriptionError(ctx, presentError(ctx, graphql.ErrorOnPath(ctx, err)))
}

func classify(err error) (code, msg string) {
	switch {
	case errors.Is(err, errUnauthenticated), errors.Is(err, session.ErrRefreshRejected):
		return CodeUnauthenticated, err.Error()
	case errors.Is(err, service.ErrForbidden):
		return CodeForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return CodeNotFound, "not found"
	case errors.Is(err, service.ErrEmailTaken):
		return CodeConflict, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return CodeInvalidCredentials, "invalid email or password"
	case errors.Is(err, service.ErrAccountLocked):
		return CodeAccountLocked, "account locked"
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidToken):
		return CodeBadUserInput, err.Error()
	case errors.Is(err, errUnsupportedOperation):
		return CodeBadRequest, err.Error()
	case errors.Is(err, session.ErrPersistence):
		return CodeUnavailable, "session could not be persisted"
	default:
		return CodeInternal, "internal error"
	}
}
