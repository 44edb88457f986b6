// Package fault defines the error classes shared by the playback, broadcast
// and relay components.
package fault

import "github.com/cockroachdb/errors"

// Error classes. Concrete errors are marked with one of these so callers can
// branch with errors.Is regardless of how the error was wrapped.
var (
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrMalformedPayload      = errors.New("malformed payload")
	ErrSubscriberUnreachable = errors.New("subscriber unreachable")
	ErrNotFound              = errors.New("not found")
)

// Storage wraps err and marks it as ErrStorageUnavailable.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStorageUnavailable)
}

// Downstream wraps err and marks it as ErrDownstreamUnavailable.
func Downstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrDownstreamUnavailable)
}

// Malformed returns a new ErrMalformedPayload error with the given detail.
func Malformed(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedPayload)
}

// Unreachable wraps err and marks it as ErrSubscriberUnreachable.
func Unreachable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrSubscriberUnreachable)
}

// NotFound wraps err and marks it as ErrNotFound.
func NotFound(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrNotFound)
}
