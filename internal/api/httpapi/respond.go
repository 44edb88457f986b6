package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/onair/internal/app/relay"
	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/fault"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("httpapi: failed to write response: %v", err)
	}
}

// writeError maps an error class to a status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fault.ErrMalformedPayload):
		status = http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrStorageUnavailable), errors.Is(err, fault.ErrDownstreamUnavailable),
		errors.Is(err, relay.ErrForwarderClosed):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		zlog.Error().Msgf("httpapi: request failed: %v", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// readBody reads a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fault.Malformed("failed to read body: %v", err)
	}
	if len(body) > maxBodySize {
		return nil, fault.Malformed("body exceeds %d bytes", maxBodySize)
	}
	return body, nil
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fault.Malformed("invalid JSON body: %v", err)
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(event.TimestampFormat)
}
