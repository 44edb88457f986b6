package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// PlaybackAdminClient is a client for the PlaybackAdmin service.
type PlaybackAdminClient struct {
	getNowPlaying *connect.Client[GetNowPlayingRequest, NowPlayingResponse]
	loadTrack     *connect.Client[LoadTrackRequest, NowPlayingResponse]
	setRepeatMode *connect.Client[SetRepeatModeRequest, NowPlayingResponse]
	setPlaying    *connect.Client[SetPlayingRequest, NowPlayingResponse]
}

// NewPlaybackAdminClient constructs a client for the PlaybackAdmin service.
func NewPlaybackAdminClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlaybackAdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &PlaybackAdminClient{
		getNowPlaying: connect.NewClient[GetNowPlayingRequest, NowPlayingResponse](httpClient, baseURL+PlaybackAdminGetNowPlayingProcedure, opts...),
		loadTrack:     connect.NewClient[LoadTrackRequest, NowPlayingResponse](httpClient, baseURL+PlaybackAdminLoadTrackProcedure, opts...),
		setRepeatMode: connect.NewClient[SetRepeatModeRequest, NowPlayingResponse](httpClient, baseURL+PlaybackAdminSetRepeatModeProcedure, opts...),
		setPlaying:    connect.NewClient[SetPlayingRequest, NowPlayingResponse](httpClient, baseURL+PlaybackAdminSetPlayingProcedure, opts...),
	}
}

// GetNowPlaying calls onair.v1.PlaybackAdmin.GetNowPlaying.
func (c *PlaybackAdminClient) GetNowPlaying(ctx context.Context) (*NowPlayingResponse, error) {
	resp, err := c.getNowPlaying.CallUnary(ctx, connect.NewRequest(&GetNowPlayingRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// LoadTrack calls onair.v1.PlaybackAdmin.LoadTrack.
func (c *PlaybackAdminClient) LoadTrack(ctx context.Context, trackID int64) (*NowPlayingResponse, error) {
	resp, err := c.loadTrack.CallUnary(ctx, connect.NewRequest(&LoadTrackRequest{TrackID: trackID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SetRepeatMode calls onair.v1.PlaybackAdmin.SetRepeatMode.
func (c *PlaybackAdminClient) SetRepeatMode(ctx context.Context, mode string) (*NowPlayingResponse, error) {
	resp, err := c.setRepeatMode.CallUnary(ctx, connect.NewRequest(&SetRepeatModeRequest{Mode: mode}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SetPlaying calls onair.v1.PlaybackAdmin.SetPlaying.
func (c *PlaybackAdminClient) SetPlaying(ctx context.Context, playing bool) (*NowPlayingResponse, error) {
	resp, err := c.setPlaying.CallUnary(ctx, connect.NewRequest(&SetPlayingRequest{Playing: playing}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// GateAdminClient is a client for the GateAdmin service.
type GateAdminClient struct {
	drain      *connect.Client[DrainRequest, DrainResponse]
	queueStats *connect.Client[QueueStatsRequest, QueueStatsResponse]
}

// NewGateAdminClient constructs a client for the GateAdmin service.
func NewGateAdminClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GateAdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &GateAdminClient{
		drain:      connect.NewClient[DrainRequest, DrainResponse](httpClient, baseURL+GateAdminDrainProcedure, opts...),
		queueStats: connect.NewClient[QueueStatsRequest, QueueStatsResponse](httpClient, baseURL+GateAdminQueueStatsProcedure, opts...),
	}
}

// Drain calls onair.v1.GateAdmin.Drain.
func (c *GateAdminClient) Drain(ctx context.Context) (*DrainResponse, error) {
	resp, err := c.drain.CallUnary(ctx, connect.NewRequest(&DrainRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// QueueStats calls onair.v1.GateAdmin.QueueStats.
func (c *GateAdminClient) QueueStats(ctx context.Context) (*QueueStatsResponse, error) {
	resp, err := c.queueStats.CallUnary(ctx, connect.NewRequest(&QueueStatsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CatalogAdminClient is a client for the CatalogAdmin service.
type CatalogAdminClient struct {
	addTrack       *connect.Client[AddTrackRequest, TrackInfo]
	setTrackStatus *connect.Client[SetTrackStatusRequest, SetTrackStatusResponse]
	listTracks     *connect.Client[ListTracksRequest, ListTracksResponse]
}

// NewCatalogAdminClient constructs a client for the CatalogAdmin service.
func NewCatalogAdminClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CatalogAdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &CatalogAdminClient{
		addTrack:       connect.NewClient[AddTrackRequest, TrackInfo](httpClient, baseURL+CatalogAdminAddTrackProcedure, opts...),
		setTrackStatus: connect.NewClient[SetTrackStatusRequest, SetTrackStatusResponse](httpClient, baseURL+CatalogAdminSetTrackStatusProcedure, opts...),
		listTracks:     connect.NewClient[ListTracksRequest, ListTracksResponse](httpClient, baseURL+CatalogAdminListTracksProcedure, opts...),
	}
}

// AddTrack calls onair.v1.CatalogAdmin.AddTrack.
func (c *CatalogAdminClient) AddTrack(ctx context.Context, req *AddTrackRequest) (*TrackInfo, error) {
	resp, err := c.addTrack.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SetTrackStatus calls onair.v1.CatalogAdmin.SetTrackStatus.
func (c *CatalogAdminClient) SetTrackStatus(ctx context.Context, trackID int64, status string, durationSec int) error {
	_, err := c.setTrackStatus.CallUnary(ctx, connect.NewRequest(&SetTrackStatusRequest{
		TrackID:     trackID,
		Status:      status,
		DurationSec: durationSec,
	}))
	return err
}

// ListTracks calls onair.v1.CatalogAdmin.ListTracks.
func (c *CatalogAdminClient) ListTracks(ctx context.Context) ([]TrackInfo, error) {
	resp, err := c.listTracks.CallUnary(ctx, connect.NewRequest(&ListTracksRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Tracks, nil
}
