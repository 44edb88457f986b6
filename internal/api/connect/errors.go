package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/app/relay"
	"github.com/osa030/onair/internal/domain/fault"
)

// toConnectError maps domain errors to RPC codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, playback.ErrTrackNotFound), errors.Is(err, fault.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, playback.ErrNoTrack), errors.Is(err, playback.ErrTrackNotReady):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, relay.ErrDrainInProgress):
		code = connect.CodeAborted
	case errors.Is(err, fault.ErrMalformedPayload):
		code = connect.CodeInvalidArgument
	case errors.Is(err, fault.ErrStorageUnavailable), errors.Is(err, fault.ErrDownstreamUnavailable),
		errors.Is(err, relay.ErrForwarderClosed):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
