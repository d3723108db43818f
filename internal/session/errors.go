package session

import "errors"

var (
	// ErrOffline is returned by authentication operations attempted while the
	// connectivity monitor reports offline. No network call is made.
	ErrOffline = errors.New("authentication unavailable while offline")

	// ErrRetryExhausted is returned when the bounded retry procedure runs out
	// of attempts without restoring the provider connection.
	ErrRetryExhausted = errors.New("authentication retry attempts exhausted")
)
