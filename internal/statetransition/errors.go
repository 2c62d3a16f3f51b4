package statetransition

import (
	"errors"

	"github.com/eigerco/attestd/internal/attestation"
)

// Errors returned by the state transition. None of them leaves a state change behind.
var (
	ErrNotAuthenticated = errors.New("caller is not authenticated")
	ErrNotAuthorized    = errors.New("caller is not authorized")
	ErrBadSignature     = errors.New("bad signature")
	ErrUnknownVerifier  = errors.New("unknown verifier")
	ErrStale            = errors.New("stale: no pending queue entry")
	ErrFromFuture       = errors.New("report is scheduled in the future")
	ErrExpired          = errors.New("queue entry expired")
)

// ErrorCode returns the stable identifier of a state transition error, or
// "" when err is not one of them.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "NOT_AUTHENTICATED"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrBadSignature):
		return "BAD_SIGNATURE"
	case errors.Is(err, ErrUnknownVerifier):
		return "UNKNOWN_VERIFIER"
	case errors.Is(err, ErrStale):
		return "STALE"
	case errors.Is(err, ErrFromFuture):
		return "FROM_FUTURE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, attestation.ErrMessageTooLarge):
		return "MESSAGE_TOO_LARGE"
	default:
		return ""
	}
}
