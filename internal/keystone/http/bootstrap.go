package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the system
//	@Description	Creates the first SYSADMIN account. This endpoint is only available when a bootstrap token is configured and only works while no accounts exist.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string						true	"Bootstrap token for authorization"
//	@Param			request				body		authsdk.BootstrapRequest	true	"Administrator account"
//	@Success		201					{object}	authsdk.BootstrapResponse	"Administrator created"
//	@Failure		400					{object}	authsdk.APIError			"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.APIError			"Missing or invalid bootstrap token"
//	@Failure		404					{object}	authsdk.APIError			"Bootstrap not enabled (no token configured)"
//	@Failure		409					{object}	authsdk.APIError			"System already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		apiError(service.ErrBootstrapDisabled).WriteError(w)
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get(authsdk.BootstrapTokenHeader)
	if token == "" {
		authsdk.ErrUnauthorized.WithMessage("bootstrap token is required in the X-Bootstrap-Token header").WriteError(w)
		return
	}

	// 3. Parse request body and validate
	var req authsdk.BootstrapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); errs != nil {
		authsdk.NewValidationError(errs).WriteError(w)
		return
	}

	// 4. Perform bootstrap
	admin, err := h.BootstrapService.Bootstrap(r.Context(), token, service.BootstrapInput{
		Email:    strings.TrimSpace(req.AdminEmail),
		Name:     strings.TrimSpace(req.AdminName),
		Password: req.AdminPassword,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		AdminUserID: admin.ID,
		AdminEmail:  admin.Email,
	})
}
