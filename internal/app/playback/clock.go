package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/domain/track"
)

// Errors
var (
	ErrNoTrack         = errors.New("no track loaded")
	ErrTrackNotFound   = errors.New("track not found")
	ErrTrackNotReady   = errors.New("track is not ready")
	ErrTickSkipped     = errors.New("previous tick still in flight")
	ErrClockClosed     = errors.New("clock is closed")
	ErrInvalidInterval = errors.New("tick interval must be a whole number of seconds, at least one")
)

// Store is the persistence contract used by the clock.
type Store interface {
	TrackLookup
	ReadPlaybackState(ctx context.Context) (*State, error)
	WritePlaybackState(ctx context.Context, s State) error
}

// Publisher receives the events produced by ticks and commands.
type Publisher interface {
	Publish(t event.Type, payload any) error
}

// Config holds clock configuration.
type Config struct {
	Interval  time.Duration // Tick interval in whole seconds
	OpTimeout time.Duration // Upper bound for one read-compute-write-publish unit
}

// Clock drives Transition on a fixed interval and serializes every
// mutation of the now-playing state.
type Clock struct {
	mu sync.Mutex // held for the full duration of a tick or command

	store Store
	pub   Publisher
	cfg   Config
	now   func() time.Time

	// Timer
	timerMu  sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// NewClock creates a stopped clock.
func NewClock(store Store, pub Publisher, cfg Config) *Clock {
	if ValidateInterval(cfg.Interval) != nil {
		cfg.Interval = 3 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Clock{
		store:    store,
		pub:      pub,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		interval: cfg.Interval,
	}
}

// Start arms the ticker with the given interval, replacing any running one.
func (c *Clock) Start(interval time.Duration) error {
	if err := ValidateInterval(interval); err != nil {
		return err
	}

	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.closed {
		return ErrClockClosed
	}
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.interval = interval
	c.cancel = cancel
	c.done = done

	go c.run(ctx, interval, done)

	zlog.Info().Msgf("playback: clock started: interval=%v", interval)
	return nil
}

// Stop cancels the ticker and waits for an in-flight tick to finish.
// Stopping a stopped clock is a no-op.
func (c *Clock) Stop() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.stopLocked()
}

// Close stops the clock permanently; later Start calls fail.
func (c *Clock) Close() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.stopLocked()
	c.closed = true
}

// Running reports whether the ticker is armed.
func (c *Clock) Running() bool {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	return c.cancel != nil
}

// Interval returns the current tick interval.
func (c *Clock) Interval() time.Duration {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	return c.interval
}

func (c *Clock) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
	zlog.Info().Msg("playback: clock stopped")
}

func (c *Clock) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tickSec := tickSeconds(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.tick(tickSec); err != nil {
				if errors.Is(err, ErrTickSkipped) {
					zlog.Debug().Msg("playback: tick skipped, previous tick still running")
					continue
				}
				zlog.Warn().Msgf("playback: tick abandoned: %v", err)
			}
		}
	}
}

// Tick runs one tick immediately with the configured interval.
// It returns ErrTickSkipped when another tick or command holds the state.
func (c *Clock) Tick() ([]event.Event, error) {
	return c.tick(tickSeconds(c.Interval()))
}

func (c *Clock) tick(tickSec int) ([]event.Event, error) {
	if !c.mu.TryLock() {
		return nil, ErrTickSkipped
	}
	defer c.mu.Unlock()

	// The tick runs to completion even when the clock is being stopped.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
	defer cancel()

	cur, err := c.store.ReadPlaybackState(ctx)
	if err != nil {
		return nil, fault.Storage(err, "failed to read now playing")
	}
	if cur == nil {
		return nil, nil
	}

	next, events, err := Transition(ctx, *cur, tickSec, c.store, c.now())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	if err := c.store.WritePlaybackState(ctx, next); err != nil {
		return nil, fault.Storage(err, "failed to write now playing")
	}

	c.publishLocked(events)
	return events, nil
}

// NowPlaying returns the current state, or ErrNoTrack when none was ever loaded.
func (c *Clock) NowPlaying(ctx context.Context) (*State, error) {
	s, err := c.store.ReadPlaybackState(ctx)
	if err != nil {
		return nil, fault.Storage(err, "failed to read now playing")
	}
	if s == nil {
		return nil, ErrNoTrack
	}
	return s, nil
}

// LoadTrack loads a catalog track from the start and begins playing it.
// The now-playing record is created on the first load.
func (c *Clock) LoadTrack(ctx context.Context, trackID int64) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fault.Storage(err, "failed to look up track")
	}
	if t == nil {
		return nil, errors.Wrapf(ErrTrackNotFound, "track %d", trackID)
	}
	if t.Status != track.StatusReady || t.DurationSec <= 0 {
		return nil, errors.Wrapf(ErrTrackNotReady, "track %d", trackID)
	}

	cur, err := c.store.ReadPlaybackState(ctx)
	if err != nil {
		return nil, fault.Storage(err, "failed to read now playing")
	}
	var s State
	if cur != nil {
		s = *cur
	} else {
		s = State{RepeatMode: RepeatNone, Emotion: "custom"}
	}

	s = load(s, t, c.now())
	s.IsPlaying = true

	if err := c.store.WritePlaybackState(ctx, s); err != nil {
		return nil, fault.Storage(err, "failed to write now playing")
	}

	zlog.Info().Msgf("playback: track loaded: track_id=%d title=%s duration=%v", t.ID, t.Title, t.Duration())
	c.publishLocked([]event.Event{{Type: event.TrackChanged, Data: trackChangedData(s)}})
	return &s, nil
}

// SetRepeatMode changes the completion behaviour of the loaded track.
func (c *Clock) SetRepeatMode(ctx context.Context, mode RepeatMode) (*State, error) {
	return c.update(ctx, func(s *State) {
		s.RepeatMode = mode
	})
}

// SetPlaying pauses or resumes playback. Resuming a track that ended
// naturally rewinds it to the start.
func (c *Clock) SetPlaying(ctx context.Context, playing bool) (*State, error) {
	now := c.now()
	return c.update(ctx, func(s *State) {
		if playing && !s.IsPlaying && s.EndedAt != nil {
			s.PositionSec = 0
			s.StartedAt = now
			s.EndedAt = nil
		}
		s.IsPlaying = playing
	})
}

// update applies fn to the stored state under the writer lock, persists the
// result and publishes a now_playing_update.
func (c *Clock) update(ctx context.Context, fn func(s *State)) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.store.ReadPlaybackState(ctx)
	if err != nil {
		return nil, fault.Storage(err, "failed to read now playing")
	}
	if cur == nil {
		return nil, ErrNoTrack
	}

	s := *cur
	fn(&s)
	s.UpdatedAt = c.now()

	if err := c.store.WritePlaybackState(ctx, s); err != nil {
		return nil, fault.Storage(err, "failed to write now playing")
	}

	c.publishLocked([]event.Event{{Type: event.NowPlayingUpdate, Data: nowPlayingData(s)}})
	return &s, nil
}

// publishLocked hands events to the publisher in emission order.
// Must be called with c.mu held.
func (c *Clock) publishLocked(events []event.Event) {
	if c.pub == nil {
		return
	}
	for _, e := range events {
		if err := c.pub.Publish(e.Type, e.Data); err != nil {
			zlog.Error().Msgf("playback: failed to publish %s: %v", e.Type, err)
		}
	}
}

// ValidateInterval accepts whole-second intervals of one second or more.
// Positions advance by the interval in whole seconds, so any remainder
// would drift the stored position away from wall time.
func ValidateInterval(d time.Duration) error {
	if d < time.Second || d%time.Second != 0 {
		return errors.Wrapf(ErrInvalidInterval, "interval %v", d)
	}
	return nil
}

// tickSeconds converts a validated tick interval to seconds for position math.
func tickSeconds(d time.Duration) int {
	return int(d / time.Second)
}
