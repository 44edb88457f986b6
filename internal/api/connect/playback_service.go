package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/domain/fault"
)

// PlaybackAdminName is the fully-qualified name of the playback admin service.
const PlaybackAdminName = "onair.v1.PlaybackAdmin"

// Procedure paths of the playback admin service.
const (
	PlaybackAdminGetNowPlayingProcedure = "/" + PlaybackAdminName + "/GetNowPlaying"
	PlaybackAdminLoadTrackProcedure     = "/" + PlaybackAdminName + "/LoadTrack"
	PlaybackAdminSetRepeatModeProcedure = "/" + PlaybackAdminName + "/SetRepeatMode"
	PlaybackAdminSetPlayingProcedure    = "/" + PlaybackAdminName + "/SetPlaying"
)

// GetNowPlayingRequest is the GetNowPlaying request.
type GetNowPlayingRequest struct{}

// LoadTrackRequest is the LoadTrack request.
type LoadTrackRequest struct {
	TrackID int64 `json:"track_id"`
}

// SetRepeatModeRequest is the SetRepeatMode request.
type SetRepeatModeRequest struct {
	Mode string `json:"mode"`
}

// SetPlayingRequest is the SetPlaying request.
type SetPlayingRequest struct {
	Playing bool `json:"playing"`
}

// NowPlayingResponse describes the now-playing state.
type NowPlayingResponse struct {
	Loaded       bool   `json:"loaded"`
	TrackID      int64  `json:"track_id,omitempty"`
	TrackTitle   string `json:"track_title,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	PositionSec  int    `json:"position_sec"`
	DurationSec  int    `json:"duration_sec"`
	RemainingSec int    `json:"remaining_sec"`
	IsPlaying    bool   `json:"is_playing"`
	RepeatMode   string `json:"repeat_mode"`
	Status       string `json:"status"`
}

// PlaybackController is the playback surface exposed to admins.
type PlaybackController interface {
	NowPlaying(ctx context.Context) (*playback.State, error)
	LoadTrack(ctx context.Context, trackID int64) (*playback.State, error)
	SetRepeatMode(ctx context.Context, mode playback.RepeatMode) (*playback.State, error)
	SetPlaying(ctx context.Context, playing bool) (*playback.State, error)
}

// PlaybackAdminService implements the PlaybackAdmin RPC.
type PlaybackAdminService struct {
	clock PlaybackController
}

// NewPlaybackAdminService creates a new PlaybackAdminService.
func NewPlaybackAdminService(clock PlaybackController) *PlaybackAdminService {
	return &PlaybackAdminService{clock: clock}
}

// GetNowPlaying returns the current state. Nothing loaded yet is reported as idle.
func (s *PlaybackAdminService) GetNowPlaying(
	ctx context.Context,
	req *connect.Request[GetNowPlayingRequest],
) (*connect.Response[NowPlayingResponse], error) {
	st, err := s.clock.NowPlaying(ctx)
	if err != nil {
		if errors.Is(err, playback.ErrNoTrack) {
			return connect.NewResponse(&NowPlayingResponse{Status: "idle"}), nil
		}
		return nil, toConnectError(err)
	}
	return connect.NewResponse(nowPlayingResponse(st)), nil
}

// LoadTrack loads a track from the start.
func (s *PlaybackAdminService) LoadTrack(
	ctx context.Context,
	req *connect.Request[LoadTrackRequest],
) (*connect.Response[NowPlayingResponse], error) {
	if req.Msg.TrackID <= 0 {
		return nil, toConnectError(fault.Malformed("track_id must be positive"))
	}
	st, err := s.clock.LoadTrack(ctx, req.Msg.TrackID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(nowPlayingResponse(st)), nil
}

// SetRepeatMode changes the repeat mode.
func (s *PlaybackAdminService) SetRepeatMode(
	ctx context.Context,
	req *connect.Request[SetRepeatModeRequest],
) (*connect.Response[NowPlayingResponse], error) {
	mode, err := playback.ParseRepeatMode(req.Msg.Mode)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	st, err := s.clock.SetRepeatMode(ctx, mode)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(nowPlayingResponse(st)), nil
}

// SetPlaying pauses or resumes playback.
func (s *PlaybackAdminService) SetPlaying(
	ctx context.Context,
	req *connect.Request[SetPlayingRequest],
) (*connect.Response[NowPlayingResponse], error) {
	st, err := s.clock.SetPlaying(ctx, req.Msg.Playing)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(nowPlayingResponse(st)), nil
}

// NewPlaybackAdminHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewPlaybackAdminHandler(svc *PlaybackAdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	getNowPlaying := connect.NewUnaryHandler(PlaybackAdminGetNowPlayingProcedure, svc.GetNowPlaying, opts...)
	loadTrack := connect.NewUnaryHandler(PlaybackAdminLoadTrackProcedure, svc.LoadTrack, opts...)
	setRepeatMode := connect.NewUnaryHandler(PlaybackAdminSetRepeatModeProcedure, svc.SetRepeatMode, opts...)
	setPlaying := connect.NewUnaryHandler(PlaybackAdminSetPlayingProcedure, svc.SetPlaying, opts...)

	return "/" + PlaybackAdminName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PlaybackAdminGetNowPlayingProcedure:
			getNowPlaying.ServeHTTP(w, r)
		case PlaybackAdminLoadTrackProcedure:
			loadTrack.ServeHTTP(w, r)
		case PlaybackAdminSetRepeatModeProcedure:
			setRepeatMode.ServeHTTP(w, r)
		case PlaybackAdminSetPlayingProcedure:
			setPlaying.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func nowPlayingResponse(s *playback.State) *NowPlayingResponse {
	resp := &NowPlayingResponse{
		Loaded:       s.HasTrack(),
		TrackTitle:   s.TrackTitle,
		FilePath:     s.FilePath,
		PositionSec:  s.PositionSec,
		DurationSec:  s.DurationSec,
		RemainingSec: int(s.Remaining().Seconds()),
		IsPlaying:    s.IsPlaying,
		RepeatMode:   s.RepeatMode.String(),
		Status:       s.Status(),
	}
	if s.TrackID != nil {
		resp.TrackID = *s.TrackID
	}
	return resp
}
