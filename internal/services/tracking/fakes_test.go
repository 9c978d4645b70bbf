package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/status"
	"github.com/stretchr/testify/mock"
)

type spyPoller struct {
	sink func(models.PositionUpdate)

	mu       sync.Mutex
	triggers int
	resets   int
	stops    int

	stopOnce sync.Once
	stopped  chan struct{}
}

func newSpyPoller(sink func(models.PositionUpdate)) *spyPoller {
	return &spyPoller{sink: sink, stopped: make(chan struct{})}
}

func (p *spyPoller) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-p.stopped:
	}
	return context.Canceled
}

func (p *spyPoller) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers++
}

func (p *spyPoller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func (p *spyPoller) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	p.stopOnce.Do(func() { close(p.stopped) })
}

func (p *spyPoller) counts() (triggers, resets, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.triggers, p.resets, p.stops
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[key]
	return ok
}

type memPositions struct {
	mu  sync.Mutex
	got []models.DriverPosition
}

func (r *memPositions) RecordPosition(ctx context.Context, p models.DriverPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, p)
	return nil
}

func (r *memPositions) ListDriverPositions(ctx context.Context, orderID string, limit int) ([]*models.DriverPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.DriverPosition{}
	for i := len(r.got) - 1; i >= 0 && len(out) < limit; i-- {
		if r.got[i].OrderID == orderID {
			p := r.got[i]
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *memPositions) bySource(source string) []models.DriverPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DriverPosition
	for _, p := range r.got {
		if p.Source == source {
			out = append(out, p)
		}
	}
	return out
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) NotifyCompletion(ctx context.Context, sessionID string, info models.SessionInfo, n status.CompletionNotice) error {
	args := m.Called(ctx, sessionID, info, n)
	return args.Error(0)
}

type lastDeliveryMock struct {
	mock.Mock
}

func (m *lastDeliveryMock) GetLastDeliveryOrder(ctx context.Context, deviceID string) (models.LastDeliveryOrder, bool, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(models.LastDeliveryOrder), args.Bool(1), args.Error(2)
}

func (m *lastDeliveryMock) SaveLastDeliveryOrder(ctx context.Context, o models.LastDeliveryOrder) error {
	return m.Called(ctx, o).Error(0)
}

func (m *lastDeliveryMock) ClearLastDeliveryOrder(ctx context.Context, deviceID string) error {
	return m.Called(ctx, deviceID).Error(0)
}

type publisherFunc func(ctx context.Context, topic string, key, value []byte) error

func (f publisherFunc) Publish(ctx context.Context, topic string, key, value []byte) error {
	return f(ctx, topic, key, value)
}
