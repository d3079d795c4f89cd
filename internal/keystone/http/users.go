package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
)

type UsersHandler struct {
	UserService *service.UserService
}

// HandleList returns one page of accounts.
//
//	@Summary		List users
//	@Description	Requires ADMIN or above. Out-of-range limits are clamped to the server's page sizes.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Offset"
//	@Success		200		{object}	authsdk.UserListResponse
//	@Failure		400		{object}	authsdk.APIError	"Bad paging parameters"
//	@Failure		401		{object}	authsdk.APIError	"Not authenticated"
//	@Failure		403		{object}	authsdk.APIError	"Insufficient role"
//	@Router			/v1/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		authsdk.ErrInvalidBody.WithMessage("limit must be an integer").WriteError(w)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		authsdk.ErrInvalidBody.WithMessage("offset must be an integer").WriteError(w)
		return
	}

	caller, _ := httpx.PrincipalFrom(r.Context())
	page, err := h.UserService.ListUsers(r.Context(), caller, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.UserListResponse{
		Users:  make([]authsdk.UserResponse, 0, len(page.Users)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, u := range page.Users {
		resp.Users = append(resp.Users, userResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet returns one account.
//
//	@Summary		Get user
//	@Description	Users may read their own account; reading others requires ADMIN.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		403	{object}	authsdk.APIError	"Insufficient role"
//	@Failure		404	{object}	authsdk.APIError	"No such user"
//	@Router			/v1/users/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpx.PrincipalFrom(r.Context())
	user, err := h.UserService.GetUserByID(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleUpdate changes a name or role.
//
//	@Summary		Update user
//	@Description	Users may rename themselves. Role changes need ADMIN and cannot grant a role above the caller's own.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"User ID"
//	@Param			request	body		authsdk.UpdateUserRequest	true	"Fields to change"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.APIError	"Validation failed"
//	@Failure		403		{object}	authsdk.APIError	"Insufficient role"
//	@Failure		404		{object}	authsdk.APIError	"No such user"
//	@Router			/v1/users/{id} [patch].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); errs != nil {
		authsdk.NewValidationError(errs).WriteError(w)
		return
	}

	upd := domain.UserUpdate{Name: req.Name}
	if req.Role != nil {
		role, ok := jwtx.ParseRole(strings.ToUpper(strings.TrimSpace(*req.Role)))
		if !ok {
			authsdk.NewValidationError(map[string]string{"role": "unknown role"}).WriteError(w)
			return
		}
		upd.Role = &role
	}

	caller, _ := httpx.PrincipalFrom(r.Context())
	user, err := h.UserService.UpdateUser(r.Context(), caller, r.PathValue("id"), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleDelete soft-deletes an account.
//
//	@Summary		Delete user
//	@Description	Users may delete themselves; deleting others requires ADMIN. The account's sessions stop working.
//	@Tags			Users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		403	{object}	authsdk.APIError	"Insufficient role"
//	@Failure		404	{object}	authsdk.APIError	"No such user"
//	@Router			/v1/users/{id} [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpx.PrincipalFrom(r.Context())
	if err := h.UserService.DeleteUser(r.Context(), caller, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
