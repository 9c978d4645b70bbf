package kafkafeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/pkg/errors"
)

var ErrHubStopped = errors.New("kafka feed hub is not running")

const (
	subscriptionBuffer = 32
	defaultConnectWait = 5 * time.Second
)

type Consumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// Hub reads the driver location topic once and fans records out to
// subscriptions by channel name. Record keys are channel names, values are
// messages.Envelope. Each subscription has its own queue, so a slow session
// only loses its own records.
type Hub struct {
	consumer    Consumer
	connectWait time.Duration

	startOnce sync.Once
	started   chan struct{}

	mu      sync.RWMutex
	running bool
	subs    map[string]map[*subscription]struct{}

	dropped atomic.Int64
}

func NewHub(c Consumer) *Hub {
	return &Hub{
		consumer:    c,
		connectWait: defaultConnectWait,
		started:     make(chan struct{}),
		subs:        map[string]map[*subscription]struct{}{},
	}
}

// Run consumes until ctx is done or the consumer fails.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	h.startOnce.Do(func() { close(h.started) })
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	slog.Info("kafka feed hub started")
	return h.consumer.Consume(ctx, func(key, value []byte) error {
		h.dispatch(string(key), value)
		return nil
	})
}

// Dropped counts records discarded because a subscription queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) dispatch(key string, value []byte) {
	var env messages.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		slog.Warn("drop malformed envelope", "key", key, "error", err.Error())
		return
	}
	channel := env.Channel
	if channel == "" {
		channel = key
	}

	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subs[channel]))
	for s := range h.subs[channel] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(delivery{event: env.Event, data: []byte(env.Data)}) {
			h.dropped.Add(1)
			slog.Warn("subscription queue full, dropping record", "channel", channel)
		}
	}
}

// Transport returns a per-session view of the hub.
func (h *Hub) Transport() *Transport {
	return &Transport{h: h}
}

func (h *Hub) add(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[s.channel] == nil {
		h.subs[s.channel] = map[*subscription]struct{}{}
	}
	h.subs[s.channel][s] = struct{}{}
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.channel], s)
	if len(h.subs[s.channel]) == 0 {
		delete(h.subs, s.channel)
	}
}

type Transport struct {
	h *Hub

	mu   sync.Mutex
	open []*subscription
}

// Connect waits for the hub to start reading, up to the hub's connect wait.
// Sessions opened while the tracker boots would otherwise miss the feed.
func (t *Transport) Connect(ctx context.Context) error {
	if t.h.isRunning() {
		return nil
	}
	timer := time.NewTimer(t.h.connectWait)
	defer timer.Stop()
	select {
	case <-t.h.started:
	case <-timer.C:
		return ErrHubStopped
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for kafka feed hub")
	}
	if !t.h.isRunning() {
		return ErrHubStopped
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel string) (feed.Subscription, error) {
	s := &subscription{
		h:        t.h,
		channel:  channel,
		handlers: map[string]func([]byte){},
		queue:    make(chan delivery, subscriptionBuffer),
		stop:     make(chan struct{}),
	}
	go s.loop()
	t.h.add(s)
	t.mu.Lock()
	t.open = append(t.open, s)
	t.mu.Unlock()
	return s, nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	open := t.open
	t.open = nil
	t.mu.Unlock()
	for _, s := range open {
		_ = s.Unsubscribe()
	}
	return nil
}

type delivery struct {
	event string
	data  []byte
}

type subscription struct {
	h       *Hub
	channel string

	mu       sync.RWMutex
	handlers map[string]func([]byte)

	queue    chan delivery
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) enqueue(d delivery) bool {
	select {
	case <-s.stop:
		return true
	default:
	}
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

func (s *subscription) loop() {
	for {
		select {
		case <-s.stop:
			return
		case d := <-s.queue:
			if fn := s.handler(d.event); fn != nil {
				fn(d.data)
			}
		}
	}
}

func (s *subscription) handler(event string) func([]byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[event]
}

func (s *subscription) Bind(event string, fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

func (s *subscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Unsubscribe detaches from the hub and stops delivery. A handler already
// running is not interrupted.
func (s *subscription) Unsubscribe() error {
	s.h.remove(s)
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
