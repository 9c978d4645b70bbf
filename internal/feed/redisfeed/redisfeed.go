package redisfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Transport delivers feed events over Redis pub/sub. Each channel message is
// a messages.Envelope.
type Transport struct {
	c     redis.UniversalClient
	owned bool

	mu   sync.Mutex
	subs []*subscription
}

func New(addr string) *Transport {
	return &Transport{
		c:     redis.NewClient(&redis.Options{Addr: addr}),
		owned: true,
	}
}

// NewWithClient shares c between transports; Disconnect leaves it open.
func NewWithClient(c redis.UniversalClient) *Transport {
	return &Transport{c: c}
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := t.c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel string) (feed.Subscription, error) {
	ps := t.c.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	s := &subscription{
		ps:       ps,
		channel:  channel,
		handlers: map[string]func([]byte){},
		done:     make(chan struct{}),
	}
	go s.loop()

	t.mu.Lock()
	t.subs = append(t.subs, s)
	t.mu.Unlock()
	return s, nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	if t.owned {
		if err := t.c.Close(); err != nil {
			return errors.Wrap(err, "redis close")
		}
	}
	return nil
}

// Publish sends event with data on channel.
func (t *Transport) Publish(ctx context.Context, channel, event string, data []byte) error {
	b, err := json.Marshal(messages.Envelope{Event: event, Channel: channel, Data: string(data)})
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := t.c.Publish(ctx, channel, b).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

type subscription struct {
	ps      *redis.PubSub
	channel string

	mu       sync.RWMutex
	handlers map[string]func([]byte)

	once sync.Once
	done chan struct{}
}

func (s *subscription) loop() {
	defer close(s.done)
	for msg := range s.ps.Channel() {
		var env messages.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("drop malformed envelope", "channel", s.channel, "error", err.Error())
			continue
		}
		s.mu.RLock()
		h := s.handlers[env.Event]
		s.mu.RUnlock()
		if h != nil {
			h([]byte(env.Data))
		}
	}
}

func (s *subscription) Bind(event string, h func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

func (s *subscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		if e := s.ps.Unsubscribe(context.Background(), s.channel); e != nil {
			err = errors.Wrap(e, "redis unsubscribe")
		}
		if e := s.ps.Close(); e != nil && err == nil {
			err = errors.Wrap(e, "redis pubsub close")
		}
	})
	return err
}
