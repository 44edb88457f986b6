// Package event defines the broadcast events sent to overlay viewers.
package event

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// Type is a broadcast event type. The string value is the wire name.
type Type string

const (
	NowPlayingUpdate  Type = "now_playing_update"
	TrackEnded        Type = "track_ended"
	TrackRestarted    Type = "track_restarted"
	TrackChanged      Type = "track_changed"
	OverlayMessage    Type = "overlay_message"
	TickerUpdate      Type = "ticker_update"
	TrackOrderChanged Type = "track_order_changed"
)

// TimestampFormat matches JavaScript's Date.toISOString.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// String returns the wire name of the event type.
func (t Type) String() string {
	return string(t)
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case NowPlayingUpdate, TrackEnded, TrackRestarted, TrackChanged,
		OverlayMessage, TickerUpdate, TrackOrderChanged:
		return true
	default:
		return false
	}
}

// Event is produced by a component and handed to the broadcast hub.
type Event struct {
	Type Type
	Data any
}

// Envelope is the JSON object delivered to each viewer.
type Envelope struct {
	Event     Type   `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Encode serializes an event into its wire form.
// A nil payload is sent as an empty object.
func Encode(t Type, data any, at time.Time) ([]byte, error) {
	if !t.Valid() {
		return nil, errors.Newf("unknown event type %q", t)
	}
	if data == nil {
		data = struct{}{}
	}
	b, err := json.Marshal(Envelope{
		Event:     t,
		Data:      data,
		Timestamp: at.UTC().Format(TimestampFormat),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s event", t)
	}
	return b, nil
}
