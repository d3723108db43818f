// Package identity defines the boundary to the hosted identity provider:
// the operations the auth client consumes and the structured error
// classification the session manager relies on. Failures are classified by an
// explicit Code at this boundary so callers never match on error message
// text.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies identity-provider failures.
type Code string

const (
	// CodeUserNotFound means the login identity does not exist yet. The QR
	// flow treats this as the trigger for account provisioning.
	CodeUserNotFound Code = "user_not_found"

	// CodeAuthRejected means the provider rejected the credential itself.
	// Never retried.
	CodeAuthRejected Code = "auth_rejected"

	// CodeNetwork means the request never completed (connectivity loss,
	// DNS, timeouts). Eligible for the bounded retry procedure.
	CodeNetwork Code = "network"

	// CodeUnavailable means the provider answered but could not serve the
	// request (5xx, throttling). Eligible for the bounded retry procedure.
	CodeUnavailable Code = "unavailable"

	// CodeInternal covers everything else.
	CodeInternal Code = "internal"
)

// Error is a classified identity-provider failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("identity: %s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("identity: %s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("identity: %s", e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the classification carried by err, or the empty Code when
// err did not originate at the provider boundary.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IsCode reports whether err carries the given classification.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether err is a network-class failure eligible for the
// bounded retry procedure. Rejection and validation failures are never
// retryable.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeUnavailable:
		return true
	default:
		return false
	}
}

// Identity is the provider's notion of the currently signed-in account.
type Identity struct {
	UID   string
	Email string
}

// Provider is the external identity service consumed by the session manager.
//
// Notifications delivers the current-identity stream: it fires at least once
// per process lifetime after ConfigurePersistence and again on every
// sign-in/sign-out, in a single ordered sequence. A nil element means no
// identity is signed in.
type Provider interface {
	// ConfigurePersistence enables durable persistence of the signed-in
	// identity across process restarts. Failure still permits login; only
	// persistence across restarts is lost.
	ConfigurePersistence(ctx context.Context) error

	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error

	// FetchToken returns a fresh bearer token for the signed-in identity.
	FetchToken(ctx context.Context) (string, error)

	Notifications() <-chan *Identity
}
