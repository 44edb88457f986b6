package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/domain/track"
)

// CatalogAdminName is the fully-qualified name of the catalog admin service.
const CatalogAdminName = "onair.v1.CatalogAdmin"

// Procedure paths of the catalog admin service.
const (
	CatalogAdminAddTrackProcedure       = "/" + CatalogAdminName + "/AddTrack"
	CatalogAdminSetTrackStatusProcedure = "/" + CatalogAdminName + "/SetTrackStatus"
	CatalogAdminListTracksProcedure     = "/" + CatalogAdminName + "/ListTracks"
)

// TrackInfo is a catalog entry.
type TrackInfo struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	FilePath    string `json:"file_path"`
	DurationSec int    `json:"duration_sec"`
	TrackNo     int    `json:"track_no"`
	Status      string `json:"status"`
}

// AddTrackRequest is the AddTrack request. A zero track number appends.
type AddTrackRequest struct {
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	FilePath    string `json:"file_path"`
	DurationSec int    `json:"duration_sec"`
	TrackNo     int    `json:"track_no,omitempty"`
	Status      string `json:"status,omitempty"`
}

// SetTrackStatusRequest is the SetTrackStatus request.
type SetTrackStatusRequest struct {
	TrackID     int64  `json:"track_id"`
	Status      string `json:"status"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// SetTrackStatusResponse is the SetTrackStatus response.
type SetTrackStatusResponse struct{}

// ListTracksRequest is the ListTracks request.
type ListTracksRequest struct{}

// ListTracksResponse is the ListTracks response.
type ListTracksResponse struct {
	Tracks []TrackInfo `json:"tracks"`
}

// CatalogStore is the catalog surface exposed to admins.
type CatalogStore interface {
	AddTrack(ctx context.Context, t track.Track) (*track.Track, error)
	SetTrackStatus(ctx context.Context, id int64, status track.Status, durationSec int) error
	ListTracks(ctx context.Context) ([]track.Track, error)
}

// CatalogAdminService implements the CatalogAdmin RPC.
type CatalogAdminService struct {
	store CatalogStore
}

// NewCatalogAdminService creates a new CatalogAdminService.
func NewCatalogAdminService(store CatalogStore) *CatalogAdminService {
	return &CatalogAdminService{store: store}
}

// AddTrack registers a track in the catalog.
func (s *CatalogAdminService) AddTrack(
	ctx context.Context,
	req *connect.Request[AddTrackRequest],
) (*connect.Response[TrackInfo], error) {
	m := req.Msg
	if strings.TrimSpace(m.Title) == "" || strings.TrimSpace(m.FilePath) == "" {
		return nil, toConnectError(fault.Malformed("title and file_path are required"))
	}
	if m.DurationSec < 0 || m.TrackNo < 0 {
		return nil, toConnectError(fault.Malformed("duration_sec and track_no must not be negative"))
	}
	status, err := parseStatus(m.Status)
	if err != nil {
		return nil, toConnectError(err)
	}

	t, err := s.store.AddTrack(ctx, track.Track{
		Title:       strings.TrimSpace(m.Title),
		Artist:      m.Artist,
		Album:       m.Album,
		FilePath:    m.FilePath,
		DurationSec: m.DurationSec,
		Order:       m.TrackNo,
		Status:      status,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(trackInfo(*t)), nil
}

// SetTrackStatus updates the readiness of a track.
func (s *CatalogAdminService) SetTrackStatus(
	ctx context.Context,
	req *connect.Request[SetTrackStatusRequest],
) (*connect.Response[SetTrackStatusResponse], error) {
	if req.Msg.Status == "" {
		return nil, toConnectError(fault.Malformed("status is required"))
	}
	status, err := parseStatus(req.Msg.Status)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.store.SetTrackStatus(ctx, req.Msg.TrackID, status, req.Msg.DurationSec); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetTrackStatusResponse{}), nil
}

// ListTracks returns the catalog in play order.
func (s *CatalogAdminService) ListTracks(
	ctx context.Context,
	req *connect.Request[ListTracksRequest],
) (*connect.Response[ListTracksResponse], error) {
	tracks, err := s.store.ListTracks(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &ListTracksResponse{Tracks: make([]TrackInfo, len(tracks))}
	for i, t := range tracks {
		resp.Tracks[i] = *trackInfo(t)
	}
	return connect.NewResponse(resp), nil
}

// NewCatalogAdminHandler builds an HTTP handler from the service implementation.
func NewCatalogAdminHandler(svc *CatalogAdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	addTrack := connect.NewUnaryHandler(CatalogAdminAddTrackProcedure, svc.AddTrack, opts...)
	setTrackStatus := connect.NewUnaryHandler(CatalogAdminSetTrackStatusProcedure, svc.SetTrackStatus, opts...)
	listTracks := connect.NewUnaryHandler(CatalogAdminListTracksProcedure, svc.ListTracks, opts...)

	return "/" + CatalogAdminName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CatalogAdminAddTrackProcedure:
			addTrack.ServeHTTP(w, r)
		case CatalogAdminSetTrackStatusProcedure:
			setTrackStatus.ServeHTTP(w, r)
		case CatalogAdminListTracksProcedure:
			listTracks.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func parseStatus(s string) (track.Status, error) {
	switch st := track.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return track.StatusPending, nil
	case track.StatusPending, track.StatusReady, track.StatusFailed:
		return st, nil
	default:
		return "", fault.Malformed("unknown track status %q", s)
	}
}

func trackInfo(t track.Track) *TrackInfo {
	return &TrackInfo{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		FilePath:    t.FilePath,
		DurationSec: t.DurationSec,
		TrackNo:     t.Order,
		Status:      string(t.Status),
	}
}
