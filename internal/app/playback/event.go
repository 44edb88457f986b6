package playback

// NowPlayingData is the payload of a now_playing_update event.
type NowPlayingData struct {
	TrackID     *int64     `json:"track_id"`
	TrackTitle  string     `json:"track_title"`
	FilePath    string     `json:"file_path"`
	PositionSec int        `json:"current_pos_sec"`
	DurationSec int        `json:"duration_sec"`
	IsPlaying   bool       `json:"is_playing"`
	RepeatMode  RepeatMode `json:"repeat_mode"`
	Emotion     string     `json:"emotion,omitempty"`
}

// TrackEndedData is the payload of a track_ended event.
type TrackEndedData struct {
	TrackID *int64 `json:"track_id"`
	Reason  string `json:"reason"`
}

// TrackRestartedData is the payload of a track_restarted event.
type TrackRestartedData struct {
	TrackID    *int64     `json:"track_id"`
	TrackTitle string     `json:"track_title"`
	RepeatMode RepeatMode `json:"repeat_mode"`
}

// TrackChangedData is the payload of a track_changed event.
type TrackChangedData struct {
	TrackID     *int64     `json:"track_id"`
	TrackTitle  string     `json:"track_title"`
	FilePath    string     `json:"file_path"`
	DurationSec int        `json:"duration_sec"`
	RepeatMode  RepeatMode `json:"repeat_mode"`
}

// ReasonRepeatNone is the track_ended reason for natural completion.
const ReasonRepeatNone = "repeat_none"

func nowPlayingData(s State) NowPlayingData {
	return NowPlayingData{
		TrackID:     s.TrackID,
		TrackTitle:  s.TrackTitle,
		FilePath:    s.FilePath,
		PositionSec: s.PositionSec,
		DurationSec: s.DurationSec,
		IsPlaying:   s.IsPlaying,
		RepeatMode:  s.RepeatMode,
		Emotion:     s.Emotion,
	}
}

// Snapshot returns the now_playing_update payload for s.
func (s *State) Snapshot() NowPlayingData {
	return nowPlayingData(*s)
}
