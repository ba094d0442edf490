package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNetwork            = errors.New("authentication service unreachable")
	ErrSessionExpired     = errors.New("session expired")
	ErrLoginInProgress    = errors.New("a login is already in progress")
)

// normalizeVerifierError keeps the session taxonomy intact and folds anything
// else, deadlines included, into ErrNetwork.
func normalizeVerifierError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNetwork):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: request timed out", ErrNetwork)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}
