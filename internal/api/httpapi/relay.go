package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/onair/internal/app/overlay"
	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/playlist"
)

// NowPlayingSource reads the current playback state.
type NowPlayingSource interface {
	NowPlaying(ctx context.Context) (*playback.State, error)
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubscriberCounter reports connected viewers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// RelayDeps are the components served by the relay routes.
type RelayDeps struct {
	Token        string
	AllowOrigins []string
	Overlay      *overlay.Service
	Playback     NowPlayingSource
	Store        Pinger
	Hub          SubscriberCounter
	WS           http.Handler
	Started      time.Time
}

type nowPlayingResponse struct {
	playback.NowPlayingData
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type noticeRequest struct {
	Text     string `json:"text"`
	Notice   string `json:"notice"`
	Slot     string `json:"slot"`
	IsActive any    `json:"is_active"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

// RegisterRelay registers the overlay server routes on mux.
//
//	GET  /health            liveness and dependency status
//	GET  /now-playing       current playback state
//	GET  /ws                viewer event stream
//	POST /message/save      store and broadcast a chat message
//	POST /notice            store a notice
//	GET  /notices           list notices
//	POST /notice/active     choose the active notices
//	GET  /tracks            list the catalog and its playable order
//	POST /tracks/order      reorder the catalog
func RegisterRelay(mux *http.ServeMux, d RelayDeps) {
	auth := func(h http.HandlerFunc) http.Handler {
		return CORS(d.AllowOrigins, BearerAuth(d.Token, h))
	}
	open := func(h http.HandlerFunc) http.Handler {
		return CORS(d.AllowOrigins, h)
	}

	mux.Handle("GET /health", open(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":    "ok",
			"service":   "relay",
			"timestamp": timestamp(),
			"uptime":    time.Since(d.Started).Seconds(),
			"db":        "ok",
		}
		if d.Hub != nil {
			resp["subscribers"] = d.Hub.SubscriberCount()
		}
		if d.Store != nil {
			if err := d.Store.Ping(r.Context()); err != nil {
				resp["status"] = "degraded"
				resp["db"] = err.Error()
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	mux.Handle("GET /now-playing", open(func(w http.ResponseWriter, r *http.Request) {
		s, err := d.Playback.NowPlaying(r.Context())
		if errors.Is(err, playback.ErrNoTrack) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "nothing loaded"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nowPlayingResponse{
			NowPlayingData: s.Snapshot(),
			Status:         s.Status(),
			StartedAt:      s.StartedAt,
			UpdatedAt:      s.UpdatedAt,
			EndedAt:        s.EndedAt,
		})
	}))

	if d.WS != nil {
		mux.Handle("GET /ws", d.WS)
	}

	mux.Handle("OPTIONS /", open(func(http.ResponseWriter, *http.Request) {}))

	mux.Handle("POST /message/save", auth(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := decodeBody(r, &raw); err != nil {
			writeError(w, err)
			return
		}
		m, err := d.Overlay.SaveMessage(r.Context(), raw)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": m.ID, "message": "Message saved"})
	}))

	mux.Handle("POST /notice", auth(func(w http.ResponseWriter, r *http.Request) {
		var req noticeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		text := req.Text
		if text == "" {
			text = req.Notice
		}
		n, err := d.Overlay.SaveNotice(r.Context(), text, req.Slot, truthy(req.IsActive))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": n.ID})
	}))

	mux.Handle("GET /notices", auth(func(w http.ResponseWriter, r *http.Request) {
		notices, err := d.Overlay.ListNotices(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
	}))

	mux.Handle("POST /notice/active", auth(func(w http.ResponseWriter, r *http.Request) {
		var req idsRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := d.Overlay.SetActiveNotices(r.Context(), req.IDs); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "active": len(req.IDs)})
	}))

	mux.Handle("GET /tracks", open(func(w http.ResponseWriter, r *http.Request) {
		tracks, err := d.Overlay.ListTracks(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		catalog := playlist.NewCatalog(tracks)
		writeJSON(w, http.StatusOK, map[string]any{
			"tracks":             overlay.TrackEntries(tracks),
			"playable":           catalog.IDs(),
			"total_duration_sec": catalog.TotalDuration(),
		})
	}))

	mux.Handle("POST /tracks/order", auth(func(w http.ResponseWriter, r *http.Request) {
		var req idsRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		tracks, err := d.Overlay.ReorderTracks(r.Context(), req.IDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracks": overlay.TrackEntries(tracks)})
	}))
}

// truthy accepts the boolean forms used by overlay clients: true, "Y", 1.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "Y" || x == "y" || x == "true" || x == "1"
	case float64:
		return x != 0
	default:
		return false
	}
}
