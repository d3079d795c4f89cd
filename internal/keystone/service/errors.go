package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInvalidInput       = errors.New("invalid_input")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
)
