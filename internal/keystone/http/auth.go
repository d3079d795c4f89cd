package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
)

// AuthHandler serves the /v1/auth endpoints. Endpoints that mint tokens also
// set the refresh cookie, so browser clients never handle the refresh token.
type AuthHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
	Sessions    *session.Authenticator
	Cookie      transport.CookieConfig
	Clock       clockwork.Clock
}

func (h *AuthHandler) issue(w http.ResponseWriter, pair *session.Pair, user domain.User) {
	h.Cookie.SetRefresh(w, pair.Refresh)

	resp := tokenResponse(pair, h.Clock.Now())
	u := userResponse(user)
	resp.User = &u
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogin exchanges credentials for a token pair.
//
//	@Summary		Log in
//	@Description	Checks the password and returns an access/refresh pair. The refresh token is also set as an HttpOnly cookie.
//	@Description	Accounts lock after too many consecutive failures until the password is reset.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"Invalid request body"
//	@Failure		401		{object}	authsdk.APIError	"Invalid email or password"
//	@Failure		423		{object}	authsdk.APIError	"Account locked"
//	@Failure		503		{object}	authsdk.APIError	"Session could not be persisted"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.AuthService.Login(r.Context(), domain.TransportCookie, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.issue(w, &res.Tokens, res.User)
}

// HandleRefresh performs an explicit refresh.
//
//	@Summary		Refresh tokens
//	@Description	Mints a new pair from a refresh token given in the body, or from the refresh cookie when the body is empty.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	false	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.APIError	"Refresh token missing, invalid or expired"
//	@Failure		503		{object}	authsdk.APIError	"Session could not be persisted"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		authsdk.ErrInvalidBody.WriteError(w)
		return
	}

	token, fromCookie := req.RefreshToken, false
	if token == "" {
		token, fromCookie = h.Cookie.ReadRefresh(r), true
	}

	o, err := h.Sessions.Refresh(r.Context(), domain.TransportCookie, token)
	if err != nil {
		if errors.Is(err, session.ErrRefreshRejected) && fromCookie && token != "" {
			h.Cookie.ClearRefresh(w)
		}
		writeServiceError(w, r, err)
		return
	}

	self := principalOf(o.Identity)
	user, err := h.UserService.GetUserByID(r.Context(), self, self.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.issue(w, o.Renewed, user)
}

// HandleSession reports the caller's session.
//
//	@Summary		Current session
//	@Description	Reports the authentication verdict for this request. An expired access token is renewed from the refresh cookie; the new pair is returned under "renewed" and the access token in the X-Access-Token header.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse
//	@Failure		400	{object}	authsdk.APIError	"Malformed Authorization header"
//	@Failure		503	{object}	authsdk.APIError	"Session could not be persisted"
//	@Router			/v1/auth/session [get].
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ac := session.FromContext(r.Context())

	resp := authsdk.SessionResponse{
		Authenticated:  ac.Authenticated(),
		State:          string(ac.Outcome.State),
		Reason:         string(ac.Outcome.Reason),
		Transport:      string(ac.Transport),
		TokenRefreshed: ac.TokenRefreshed,
	}
	if ac.Renewed != nil {
		resp.Renewed = tokenResponse(ac.Renewed, h.Clock.Now())
	}
	if ac.Authenticated() {
		self := principalOf(*ac.Identity)
		user, err := h.UserService.GetUserByID(r.Context(), self, self.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		u := userResponse(user)
		resp.User = &u
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout revokes the caller's access token.
//
//	@Summary		Log out
//	@Description	Clears the stored access token fingerprint and the refresh cookie.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"Not authenticated"
//	@Failure		503	{object}	authsdk.APIError	"Session could not be persisted"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFrom(r.Context())
	if err := h.AuthService.Logout(r.Context(), domain.TransportCookie, p.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Cookie.ClearRefresh(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegister creates an account.
//
//	@Summary		Register
//	@Description	Creates a USER account and mails a verification link.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.APIError	"Validation failed"
//	@Failure		409		{object}	authsdk.APIError	"Email already registered"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); errs != nil {
		authsdk.NewValidationError(errs).WriteError(w)
		return
	}

	user, err := h.AuthService.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}

// HandleVerifyEmail redeems a verification token.
//
//	@Summary		Verify email
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyEmailRequest	true	"Token from the verification mail"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		401		{object}	authsdk.APIError	"Token invalid or expired"
//	@Router			/v1/auth/verify-email [post].
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.AuthService.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleForgotPassword mails a reset link.
//
//	@Summary		Request a password reset
//	@Description	Always succeeds, whether or not the address is registered.
//	@Tags			Accounts
//	@Accept			json
//	@Param			request	body	authsdk.ForgotPasswordRequest	true	"Account email"
//	@Success		204
//	@Router			/v1/auth/password/forgot [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.AuthService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPassword sets a new password.
//
//	@Summary		Reset password
//	@Description	Consumes a reset token. The account is unlocked and outstanding access tokens are revoked.
//	@Tags			Accounts
//	@Accept			json
//	@Param			request	body	authsdk.ResetPasswordRequest	true	"Reset token and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Validation failed"
//	@Failure		401	{object}	authsdk.APIError	"Token invalid or expired"
//	@Router			/v1/auth/password/reset [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); errs != nil {
		authsdk.NewValidationError(errs).WriteError(w)
		return
	}
	if err := h.AuthService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func principalOf(id jwtx.Identity) httpx.Principal {
	return httpx.Principal{UserID: id.Subject, Email: id.Email, Role: id.Role}
}
