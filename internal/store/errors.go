package store

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already taken")
	ErrAbsenceNotFound    = errors.New("absence request not found")
	ErrInvalidState       = errors.New("invalid absence request state")
)
