package oauth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEntropyUnavailable indicates the platform has no usable source of
// cryptographically secure randomness. This is fatal and never retried.
var ErrEntropyUnavailable = errors.New("secure entropy source unavailable")

// ErrUserCancelled indicates the user dismissed or denied the authorization
// prompt. Cancellation is a normal flow exit, not a failure: callers should
// check for it with errors.Is before treating a sign-in error as fatal.
var ErrUserCancelled = errors.New("sign-in cancelled by user")

// ErrInvalidGrant indicates the authorization server rejected a refresh or
// exchange grant (revoked or expired refresh token, reused code). The session
// is no longer usable and the user must re-authorize.
var ErrInvalidGrant = errors.New("grant is invalid or has been revoked")

// ErrNoSession indicates no stored session exists for silent sign-in.
var ErrNoSession = errors.New("no stored session")

// InvalidInputError reports malformed input to a crypto helper, such as a
// code verifier containing non-ASCII characters.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkError wraps a transport-level failure reaching the authorization,
// token, or userinfo endpoint. It is surfaced to the caller and never
// retried automatically.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: endpoint unreachable: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProviderError reports a non-2xx response from an OAuth endpoint, carrying
// the provider-supplied error code and description when the body is a
// standard OAuth error document.
type ProviderError struct {
	// Code is the OAuth error code, e.g. "invalid_grant" or "access_denied".
	Code string

	// Description is the human-readable error_description, if supplied.
	Description string

	// StatusCode is the HTTP status of the response.
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider returned %q (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("provider returned %q (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("provider request failed with status %d", e.StatusCode)
}

// Is maps invalid_grant responses onto ErrInvalidGrant so callers can use
// errors.Is without inspecting the code string themselves.
func (e *ProviderError) Is(target error) bool {
	return target == ErrInvalidGrant && e.Code == "invalid_grant"
}

// ScopeDeniedError indicates an incremental scope request was rejected by
// the user or provider. The existing session is unaffected.
type ScopeDeniedError struct {
	Scopes []string
}

func (e *ScopeDeniedError) Error() string {
	return fmt.Sprintf("requested scopes denied: %s", strings.Join(e.Scopes, " "))
}
