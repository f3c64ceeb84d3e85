package auth

import "errors"

var (
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrMissingSecret = errors.New("auth: secret is not configured")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)
