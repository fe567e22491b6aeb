package chat

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks malformed or empty input.
	ErrValidation = errors.New("invalid request")
	// ErrAuthorizationDenied marks a hook veto, a missing identity or an
	// ownership mismatch.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrNotFound marks a missing conversation, or conversation access in
	// stateless mode.
	ErrNotFound = errors.New("conversation not found")
	// ErrConflict marks a conversation that changed between read and write.
	// The caller may retry.
	ErrConflict = errors.New("conversation was modified concurrently")
	// ErrPersistence marks a failed storage write before streaming started.
	ErrPersistence = errors.New("failed to persist conversation")
	// ErrPostCompletion marks a failure recording a finished turn. It is only
	// logged and reported to hooks, never returned to a caller.
	ErrPostCompletion = errors.New("failed to record completed turn")
)

// HTTPStatus maps pipeline errors to response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show to API callers.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		if errors.Is(err, ErrPersistence) {
			return ErrPersistence.Error()
		}
		return "internal error"
	}
	return err.Error()
}
