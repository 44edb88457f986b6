// Package hub provides the broadcast hub that fans out overlay events to
// connected viewers.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/onair/internal/domain/event"
	"github.com/osa030/onair/internal/domain/fault"
)

// ErrHubClosed is returned when subscribing to or publishing on a closed hub.
var ErrHubClosed = errors.New("hub is closed")

// Conn is a viewer connection.
// Send and Ping may be called concurrently with each other but Send is never
// called concurrently with itself.
type Conn interface {
	// Send writes one text frame.
	Send(ctx context.Context, msg []byte) error
	// Ping probes liveness. It fails when the previous probe was not acknowledged.
	Ping(ctx context.Context) error
	Close() error
}

// Config holds hub configuration.
type Config struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int // Outbound frames queued per subscriber before eviction
}

// subscriber is a registered connection and its outbound queue.
type subscriber struct {
	id    string
	conn  Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub manages viewer subscriptions and broadcasting.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	cfg     Config
	writers sync.WaitGroup

	hbMu     sync.Mutex
	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// New creates a new hub.
func New(cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		cfg:         cfg,
	}
}

// Subscribe registers conn and returns its subscription ID.
func (h *Hub) Subscribe(conn Conn) (string, error) {
	return h.subscribe(conn, nil)
}

// SubscribeWith registers conn with a first frame that is queued ahead of
// every event published after registration.
func (h *Hub) SubscribeWith(conn Conn, t event.Type, payload any) (string, error) {
	msg, err := event.Encode(t, payload, time.Now())
	if err != nil {
		return "", err
	}
	return h.subscribe(conn, msg)
}

func (h *Hub) subscribe(conn Conn, first []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}

	sub := &subscriber{
		id:    uuid.New().String(),
		conn:  conn,
		queue: make(chan []byte, h.cfg.SendBuffer),
		done:  make(chan struct{}),
	}
	if first != nil {
		// Publish holds the read lock, so nothing can be queued before this.
		sub.queue <- first
	}
	h.subscribers[sub.id] = sub

	h.writers.Add(1)
	go h.write(sub)

	zlog.Debug().Msgf("hub: subscribed: id=%s count=%d", sub.id, len(h.subscribers))
	return sub.id, nil
}

// Unsubscribe removes a subscription and closes its connection.
// Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		sub.stop()
	}
}

// Publish serializes the event once and enqueues it for every subscriber.
// A subscriber whose queue is full is evicted; the others are unaffected.
func (h *Hub) Publish(t event.Type, payload any) error {
	msg, err := event.Encode(t, payload, time.Now())
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	var evict []string
	for id, sub := range h.subscribers {
		select {
		case sub.queue <- msg:
		default:
			evict = append(evict, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range evict {
		h.evict(id, fault.Unreachable(errors.New("send queue full"), "enqueue failed"))
	}
	return nil
}

// SendTo enqueues an event for a single subscriber.
func (h *Hub) SendTo(id string, t event.Type, payload any) error {
	msg, err := event.Encode(t, payload, time.Now())
	if err != nil {
		return err
	}

	h.mu.RLock()
	sub, ok := h.subscribers[id]
	if !ok || h.closed {
		h.mu.RUnlock()
		return nil
	}
	select {
	case sub.queue <- msg:
		h.mu.RUnlock()
		return nil
	default:
		h.mu.RUnlock()
	}

	err = fault.Unreachable(errors.New("send queue full"), "enqueue failed")
	h.evict(id, err)
	return err
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Start runs the heartbeat loop until ctx is done or the hub is closed.
// Calling Start on a running hub is a no-op.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}

	h.hbMu.Lock()
	defer h.hbMu.Unlock()
	if h.hbCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.hbCancel = cancel
	h.hbDone = done

	go h.heartbeat(ctx, done)

	zlog.Info().Msgf("hub: heartbeat started: interval=%v", h.cfg.HeartbeatInterval)
	return nil
}

// Close stops the heartbeat, refuses new subscriptions, flushes queued
// frames and closes every connection.
func (h *Hub) Close() {
	h.hbMu.Lock()
	if h.hbCancel != nil {
		h.hbCancel()
		<-h.hbDone
		h.hbCancel = nil
		h.hbDone = nil
	}
	h.hbMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := lo.Values(h.subscribers)
	h.subscribers = make(map[string]*subscriber)
	// Publishers enqueue under RLock, so no send can race with these closes.
	for _, sub := range subs {
		close(sub.queue)
	}
	h.mu.Unlock()

	h.writers.Wait()
	zlog.Info().Msgf("hub: closed: flushed=%d", len(subs))
}

// write delivers queued frames to one connection in order.
func (h *Hub) write(sub *subscriber) {
	defer h.writers.Done()
	defer func() {
		if err := sub.conn.Close(); err != nil {
			zlog.Debug().Msgf("hub: close failed: id=%s err=%v", sub.id, err)
		}
	}()

	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-sub.queue:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
			err := sub.conn.Send(ctx, msg)
			cancel()
			if err != nil {
				h.evict(sub.id, fault.Unreachable(err, "write failed"))
				return
			}
		}
	}
}

func (h *Hub) heartbeat(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

// probe pings every subscriber in parallel and evicts the unresponsive ones.
func (h *Hub) probe(ctx context.Context) {
	h.mu.RLock()
	subs := lo.Values(h.subscribers)
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscriber) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			defer cancel()
			if err := s.conn.Ping(pctx); err != nil {
				h.evict(s.id, fault.Unreachable(err, "heartbeat failed"))
			}
		}(sub)
	}
	wg.Wait()
}

func (h *Hub) evict(id string, reason error) {
	zlog.Debug().Msgf("hub: evicting subscriber: id=%s reason=%v", id, reason)
	h.Unsubscribe(id)
}
