package alert

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidSecret is returned when an event carries no secret or the wrong one.
var ErrInvalidSecret = errors.New("invalid secret")

// Authorize accepts ev only when it presents a non-empty secret equal to
// expected. An empty expected secret denies every event.
func Authorize(ev Event, expected string) error {
	if ev.Secret == "" || expected == "" {
		return ErrInvalidSecret
	}
	if subtle.ConstantTimeCompare([]byte(ev.Secret), []byte(expected)) != 1 {
		return ErrInvalidSecret
	}
	return nil
}
