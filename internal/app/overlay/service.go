// Package overlay provides the overlay content operations: chat messages,
// ticker notices and the catalog order.
package overlay

import (
	"context"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/message"
	"github.com/osa030/onair/internal/domain/track"
)

// Store is the persistence contract of the overlay service.
type Store interface {
	SaveMessage(ctx context.Context, m *message.Message) (int64, error)
	SaveNotice(ctx context.Context, n message.Notice) (int64, error)
	ListNotices(ctx context.Context) ([]message.Notice, error)
	SetActiveNotices(ctx context.Context, ids []int64) error
	ListTracks(ctx context.Context) ([]track.Track, error)
	ReorderTracks(ctx context.Context, ids []int64) error
}

// Publisher receives overlay events.
type Publisher interface {
	Publish(t event.Type, payload any) error
}

// TickerData is the payload of a ticker_update event.
type TickerData struct {
	Notices []message.Notice `json:"notices"`
}

// TrackEntry is one catalog line in a track_order_changed event.
type TrackEntry struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	DurationSec int    `json:"duration_sec"`
	FilePath    string `json:"file_path"`
	TrackNo     int    `json:"track_no"`
	Status      string `json:"status"`
}

// TrackOrderData is the payload of a track_order_changed event.
type TrackOrderData struct {
	Tracks []TrackEntry `json:"tracks"`
}

// Service implements the overlay content operations.
type Service struct {
	store Store
	pub   Publisher
}

// NewService creates a new overlay service.
func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub}
}

// SaveMessage decodes, stores and broadcasts a chat message.
func (s *Service) SaveMessage(ctx context.Context, raw map[string]any) (*message.Message, error) {
	m, err := message.Decode(raw)
	if err != nil {
		return nil, err
	}

	if m.ID, err = s.store.SaveMessage(ctx, m); err != nil {
		return nil, err
	}

	zlog.Info().Msgf("overlay: message saved: id=%d role=%s text=%s", m.ID, m.Role, m.Preview(30))
	s.publish(event.OverlayMessage, m)
	return m, nil
}

// SaveNotice stores a notice and broadcasts the active ticker.
func (s *Service) SaveNotice(ctx context.Context, text, slot string, active bool) (*message.Notice, error) {
	n, err := message.NewNotice(text, slot)
	if err != nil {
		return nil, err
	}
	n.Active = active

	if n.ID, err = s.store.SaveNotice(ctx, *n); err != nil {
		return nil, err
	}

	zlog.Info().Msgf("overlay: notice saved: id=%d slot=%s active=%v", n.ID, n.Slot, n.Active)
	if err := s.publishTicker(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotices returns every notice, newest first.
func (s *Service) ListNotices(ctx context.Context) ([]message.Notice, error) {
	return s.store.ListNotices(ctx)
}

// SetActiveNotices activates exactly ids and broadcasts the active ticker.
func (s *Service) SetActiveNotices(ctx context.Context, ids []int64) error {
	ids = lo.Uniq(ids)
	if err := s.store.SetActiveNotices(ctx, ids); err != nil {
		return err
	}

	zlog.Info().Msgf("overlay: notices activated: count=%d", len(ids))
	return s.publishTicker(ctx)
}

// ListTracks returns the catalog in play order.
func (s *Service) ListTracks(ctx context.Context) ([]track.Track, error) {
	return s.store.ListTracks(ctx)
}

// ReorderTracks puts the given tracks first in the given order and
// broadcasts the new catalog order.
func (s *Service) ReorderTracks(ctx context.Context, ids []int64) ([]track.Track, error) {
	if err := s.store.ReorderTracks(ctx, ids); err != nil {
		return nil, err
	}
	tracks, err := s.store.ListTracks(ctx)
	if err != nil {
		return nil, err
	}

	zlog.Info().Msgf("overlay: tracks reordered: count=%d", len(tracks))
	s.publish(event.TrackOrderChanged, TrackOrderData{Tracks: TrackEntries(tracks)})
	return tracks, nil
}

// TrackEntries maps catalog tracks to their wire form.
func TrackEntries(tracks []track.Track) []TrackEntry {
	return lo.Map(tracks, func(t track.Track, _ int) TrackEntry {
		return TrackEntry{
			ID:          t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			DurationSec: t.DurationSec,
			FilePath:    t.FilePath,
			TrackNo:     t.Order,
			Status:      string(t.Status),
		}
	})
}

func (s *Service) publishTicker(ctx context.Context) error {
	notices, err := s.store.ListNotices(ctx)
	if err != nil {
		return err
	}
	active := lo.Filter(notices, func(n message.Notice, _ int) bool { return n.Active })
	s.publish(event.TickerUpdate, TickerData{Notices: active})
	return nil
}

func (s *Service) publish(t event.Type, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(t, payload); err != nil {
		zlog.Error().Msgf("overlay: failed to publish %s: %v", t, err)
	}
}
