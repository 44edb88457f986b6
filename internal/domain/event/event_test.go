package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WireShape(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 5, 250_000_000, time.FixedZone("KST", 9*3600))

	b, err := Encode(TrackChanged, map[string]any{"track_id": 2}, at)
	require.NoError(t, err)

	assert.JSONEq(t, `{"event":"track_changed","data":{"track_id":2},"timestamp":"2026-03-01T03:30:05.250Z"}`, string(b))
}

func TestEncode_NilData(t *testing.T) {
	b, err := Encode(TickerUpdate, nil, time.Unix(0, 0))
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, map[string]any{}, env["data"])
	assert.Equal(t, "1970-01-01T00:00:00.000Z", env["timestamp"])
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := Encode(Type("bogus"), nil, time.Now())
	assert.Error(t, err)
}

func TestEncode_Unserializable(t *testing.T) {
	_, err := Encode(OverlayMessage, map[string]any{"ch": make(chan int)}, time.Now())
	assert.Error(t, err)
}

func TestType_Valid(t *testing.T) {
	for _, typ := range []Type{NowPlayingUpdate, TrackEnded, TrackRestarted, TrackChanged, OverlayMessage, TickerUpdate, TrackOrderChanged} {
		assert.True(t, typ.Valid(), typ.String())
	}
	assert.False(t, Type("").Valid())
}
