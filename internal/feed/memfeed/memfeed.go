// Package memfeed is an in-process feed transport, used by the tracker when
// no broker is configured.
package memfeed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/pkg/errors"
)

type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[*subscription]struct{}{}}
}

// Publish delivers data to every handler bound to event on channel.
// It returns the number of handlers invoked.
func (b *Broker) Publish(channel, event string, data []byte) int {
	b.mu.RLock()
	var targets []func([]byte)
	for s := range b.subs[channel] {
		if h := s.handler(event); h != nil {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(data)
	}
	return len(targets)
}

func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *Broker) add(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[s.channel] == nil {
		b.subs[s.channel] = map[*subscription]struct{}{}
	}
	b.subs[s.channel][s] = struct{}{}
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.channel], s)
	if len(b.subs[s.channel]) == 0 {
		delete(b.subs, s.channel)
	}
}

// Transport is one connection to the broker.
type Transport struct {
	b *Broker

	ConnectErr error

	Connects     atomic.Int64
	Disconnects  atomic.Int64
	Unsubscribes atomic.Int64

	mu   sync.Mutex
	open []*subscription
}

func (b *Broker) Transport() *Transport {
	return &Transport{b: b}
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.Connects.Add(1)
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel string) (feed.Subscription, error) {
	if channel == "" {
		return nil, errors.New("empty channel")
	}
	s := &subscription{t: t, channel: channel, handlers: map[string]func([]byte){}}
	t.b.add(s)
	t.mu.Lock()
	t.open = append(t.open, s)
	t.mu.Unlock()
	return s, nil
}

func (t *Transport) Disconnect() error {
	t.Disconnects.Add(1)
	t.mu.Lock()
	open := t.open
	t.open = nil
	t.mu.Unlock()
	for _, s := range open {
		t.b.remove(s)
	}
	return nil
}

type subscription struct {
	t       *Transport
	channel string

	mu       sync.RWMutex
	handlers map[string]func([]byte)
	closed   bool
}

func (s *subscription) handler(event string) func([]byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[event]
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
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.t.Unsubscribes.Add(1)
	s.t.b.remove(s)
	return nil
}
