// Package apperr holds the failure taxonomy shared by the commerce core.
//
// Nothing here is fatal: every failure is recovered by retrying the user
// action that triggered it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrValidation blocks an action locally. No network call is made.
	ErrValidation = errors.New("validation failed")
	// ErrSessionExpired means the credential is missing, expired or was
	// rejected by the server.
	ErrSessionExpired = errors.New("session expired")
	// ErrRemoteUnavailable covers transport failures, 5xx responses and
	// malformed bodies.
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)

// ValidationError carries field level messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func Validation(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func Fields(msg string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteError is a non-2xx answer from the storefront service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteUnavailable:
		return e.Status >= http.StatusInternalServerError
	case ErrSessionExpired:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// Unavailable wraps err so that it matches ErrRemoteUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
}

// UserMessage extracts the text to show for err, falling back when err
// carries no server provided message.
func UserMessage(err error, fallback string) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid.Message
	}
	if errors.Is(err, ErrSessionExpired) {
		return "Your session has expired. Please log in again to continue."
	}
	return fallback
}
