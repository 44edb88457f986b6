package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/onair/internal/app/hub"
	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/event"
)

// NowPlayingSource supplies the state sent to a viewer when it connects.
type NowPlayingSource interface {
	NowPlaying(ctx context.Context) (*playback.State, error)
}

// Handler upgrades viewer requests and registers them with the hub.
type Handler struct {
	hub      *hub.Hub
	source   NowPlayingSource
	upgrader websocket.Upgrader
}

// NewHandler creates a viewer endpoint. An empty origin list accepts any origin.
func NewHandler(h *hub.Hub, source NowPlayingSource, allowOrigins []string) *Handler {
	return &Handler{
		hub:    h,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowOrigins) == 0 || origin == "" || lo.Contains(allowOrigins, origin)
			},
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Debug().Msgf("ws: upgrade failed: remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	conn := NewConn(c)

	// The snapshot is read first and queued ahead of later broadcasts so a
	// viewer never sees an older state after a newer update.
	var id string
	if snap := h.snapshot(r.Context()); snap != nil {
		id, err = h.hub.SubscribeWith(conn, event.NowPlayingUpdate, snap)
	} else {
		id, err = h.hub.Subscribe(conn)
	}
	if err != nil {
		zlog.Debug().Msgf("ws: subscribe refused: %v", err)
		conn.Close()
		return
	}
	zlog.Info().Msgf("ws: viewer connected: id=%s remote=%s", id, r.RemoteAddr)

	err = conn.ReadPump()
	h.hub.Unsubscribe(id)
	if err != nil {
		zlog.Debug().Msgf("ws: viewer read ended: id=%s err=%v", id, err)
	}
	zlog.Info().Msgf("ws: viewer disconnected: id=%s", id)
}

func (h *Handler) snapshot(ctx context.Context) *playback.NowPlayingData {
	if h.source == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := h.source.NowPlaying(ctx)
	if err != nil || s == nil {
		return nil
	}
	snap := s.Snapshot()
	return &snap
}
