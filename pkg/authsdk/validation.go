package authsdk

import "strings"

const (
	requiredReason = "required"

	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 100
	maxEmailLen    = 254
)

// Validate checks the bootstrap request shape. It returns field -> problem, or
// nil when the request is well formed. Email syntax and password strength are
// checked again by the server.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateEmail(errs, "admin_email", b.AdminEmail)
	validateName(errs, "admin_name", b.AdminName, true)
	validatePassword(errs, "admin_password", b.AdminPassword)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateEmail(errs, "email", r.Email)
	validateName(errs, "name", r.Name, false)
	validatePassword(errs, "password", r.Password)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (r ResetPasswordRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.Token) == "" {
		errs["token"] = requiredReason
	}
	validatePassword(errs, "password", r.Password)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (u UpdateUserRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if u.Name == nil && u.Role == nil {
		errs["name"] = "nothing to update"
	}
	if u.Name != nil {
		validateName(errs, "name", *u.Name, true)
	}
	if u.Role != nil && strings.TrimSpace(*u.Role) == "" {
		errs["role"] = requiredReason
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateEmail(errs map[string]string, field, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs[field] = requiredReason
	case len(email) > maxEmailLen:
		errs[field] = "too long (max 254)"
	case !strings.Contains(email, "@"):
		errs[field] = "must be an email address"
	}
}

func validateName(errs map[string]string, field, name string, required bool) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" && required:
		errs[field] = requiredReason
	case len(name) > maxNameLen:
		errs[field] = "too long (max 100)"
	}
}

func validatePassword(errs map[string]string, field, pw string) {
	switch {
	case pw == "":
		errs[field] = requiredReason
	case len(pw) < minPasswordLen:
		errs[field] = "too short (min 8)"
	case len(pw) > maxPasswordLen:
		errs[field] = "too long (max 128)"
	}
}
