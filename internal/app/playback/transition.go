package playback

import (
	"context"
	"time"

	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/domain/track"
)

// TrackLookup answers the catalog queries needed for repeat-all navigation.
// Implementations return nil (and no error) when no track matches.
type TrackLookup interface {
	GetTrack(ctx context.Context, id int64) (*track.Track, error)
	TrackAfter(ctx context.Context, order int) (*track.Track, error)
	FirstTrack(ctx context.Context) (*track.Track, error)
}

// Transition computes the state one tick of tickSec seconds later.
//
// Completion is reached once the position is within one tick of the end
// (position+tick >= duration-tick). The returned state equals s when nothing
// changes, and the events are in emission order.
func Transition(ctx context.Context, s State, tickSec int, catalog TrackLookup, now time.Time) (State, []event.Event, error) {
	if !s.IsPlaying || s.DurationSec <= 0 || tickSec <= 0 {
		return s, nil, nil
	}

	if s.PositionSec+tickSec < s.DurationSec-tickSec {
		s.PositionSec += tickSec
		s.UpdatedAt = now
		return s, []event.Event{{Type: event.NowPlayingUpdate, Data: nowPlayingData(s)}}, nil
	}

	switch s.RepeatMode {
	case RepeatOne:
		s.PositionSec = 0
		s.StartedAt = now
		s.UpdatedAt = now
		return s, []event.Event{{Type: event.TrackRestarted, Data: TrackRestartedData{
			TrackID:    s.TrackID,
			TrackTitle: s.TrackTitle,
			RepeatMode: RepeatOne,
		}}}, nil

	case RepeatAll:
		next, err := successor(ctx, s, catalog)
		if err != nil {
			return s, nil, err
		}
		if next == nil {
			return s, nil, nil
		}
		s = load(s, next, now)
		return s, []event.Event{{Type: event.TrackChanged, Data: trackChangedData(s)}}, nil

	default:
		ended := now
		s.IsPlaying = false
		s.EndedAt = &ended
		s.UpdatedAt = now
		return s, []event.Event{{Type: event.TrackEnded, Data: TrackEndedData{
			TrackID: s.TrackID,
			Reason:  ReasonRepeatNone,
		}}}, nil
	}
}

// successor returns the next track by ascending order, wrapping to the first.
// A current track that is no longer in the catalog restarts from the first.
func successor(ctx context.Context, s State, catalog TrackLookup) (*track.Track, error) {
	if s.TrackID != nil {
		cur, err := catalog.GetTrack(ctx, *s.TrackID)
		if err != nil {
			return nil, fault.Storage(err, "failed to look up current track")
		}
		if cur != nil {
			next, err := catalog.TrackAfter(ctx, cur.Order)
			if err != nil {
				return nil, fault.Storage(err, "failed to look up next track")
			}
			if next != nil {
				return next, nil
			}
		}
	}

	first, err := catalog.FirstTrack(ctx)
	if err != nil {
		return nil, fault.Storage(err, "failed to look up first track")
	}
	return first, nil
}

// load replaces the track snapshot in s and rewinds to the start.
func load(s State, t *track.Track, now time.Time) State {
	id := t.ID
	s.TrackID = &id
	s.TrackTitle = t.Title
	s.FilePath = t.FilePath
	s.DurationSec = t.DurationSec
	s.PositionSec = 0
	s.StartedAt = now
	s.UpdatedAt = now
	s.EndedAt = nil
	return s
}

func trackChangedData(s State) TrackChangedData {
	return TrackChangedData{
		TrackID:     s.TrackID,
		TrackTitle:  s.TrackTitle,
		FilePath:    s.FilePath,
		DurationSec: s.DurationSec,
		RepeatMode:  s.RepeatMode,
	}
}
