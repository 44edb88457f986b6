package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/onair/internal/app/relay"
	"github.com/osa030/onair/internal/domain/message"
	"github.com/osa030/onair/internal/infra/relayclient"
)

// Forwarder relays messages and redelivers queued ones.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte) (relay.Result, error)
	Drain(ctx context.Context) (relay.DrainReport, error)
	Pending(ctx context.Context) (int, error)
}

// RelayPinger checks the overlay server.
type RelayPinger interface {
	Ping(ctx context.Context) (map[string]any, error)
}

// GateDeps are the components served by the gate routes.
type GateDeps struct {
	Token        string
	AllowOrigins []string
	Forwarder    Forwarder
	Relay        RelayPinger
	Started      time.Time
}

// RegisterGate registers the ingress gate routes on mux.
//
//	POST /fromGpt          accept a message and forward it to the relay
//	POST /resend-fallback  redeliver queued messages
//	GET  /health           liveness and queue depth
//	GET  /relay/ping       relay connectivity
func RegisterGate(mux *http.ServeMux, d GateDeps) {
	auth := func(h http.HandlerFunc) http.Handler {
		return CORS(d.AllowOrigins, BearerAuth(d.Token, h))
	}
	open := func(h http.HandlerFunc) http.Handler {
		return CORS(d.AllowOrigins, h)
	}

	mux.Handle("OPTIONS /", open(func(http.ResponseWriter, *http.Request) {}))

	mux.Handle("POST /fromGpt", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		text, _ := body["text"].(string)
		if strings.TrimSpace(text) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing text field"})
			return
		}

		role, _ := body["role"].(string)
		body["role"] = message.MapRole(role)
		body["timestamp"] = timestamp()
		payload, err := json.Marshal(body)
		if err != nil {
			writeError(w, errors.Wrap(err, "failed to encode payload"))
			return
		}

		zlog.Info().Msgf("httpapi: message received: role=%s", body["role"])

		res, err := d.Forwarder.Forward(r.Context(), payload)
		switch {
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": "Relay unavailable and fallback write failed",
				"error":   err.Error(),
			})
		case res.Queued:
			writeJSON(w, http.StatusAccepted, map[string]any{
				"success": false,
				"message": "Relay unavailable, message saved to fallback",
				"error":   res.Reason,
			})
		default:
			var data any = res.Body
			if !json.Valid(res.Body) {
				data = string(res.Body)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": "Message received and forwarded",
				"data":    data,
			})
		}
	}))

	mux.Handle("POST /resend-fallback", auth(func(w http.ResponseWriter, r *http.Request) {
		pending, err := d.Forwarder.Pending(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if pending == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No fallback messages found"})
			return
		}

		report, err := d.Forwarder.Drain(r.Context())
		switch {
		case errors.Is(err, relay.ErrDrainInProgress):
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
			return
		case err != nil && report == (relay.DrainReport{}):
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"totalRetried": report.TotalRetried,
			"delivered":    report.Delivered,
			"failedCount":  report.FailedCount,
			"untried":      report.Untried,
			"message":      fmt.Sprintf("Resent %d messages", report.Delivered),
		})
	}))

	mux.Handle("GET /health", open(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":    "ok",
			"service":   "gate",
			"timestamp": timestamp(),
			"uptime":    time.Since(d.Started).Seconds(),
		}
		if n, err := d.Forwarder.Pending(r.Context()); err == nil {
			resp["pending"] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	mux.Handle("GET /relay/ping", open(func(w http.ResponseWriter, r *http.Request) {
		health, err := d.Relay.Ping(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":    "connected",
				"relay":     health,
				"timestamp": timestamp(),
			})
			return
		}

		zlog.Warn().Msgf("httpapi: relay ping failed: %v", err)
		var se *relayclient.StatusError
		if errors.As(err, &se) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "relay-error",
				"code":    se.Code,
				"message": "Relay server returned an error",
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "disconnected",
			"error":     err.Error(),
			"timestamp": timestamp(),
		})
	}))
}
