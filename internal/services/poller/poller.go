package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DriverTrack/internal/integrations/orders"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/pkg/errors"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller periodically fetches the driver position and delivery status of one
// order. Results go to the sink; failures are logged and retried on the
// next tick.
type Poller struct {
	orders          orders.Client
	rl              RateLimiter
	businessOrderID string
	sink            func(models.PositionUpdate)

	pollInterval       time.Duration
	fetchTimeout       time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}
	resetCh   chan struct{}

	stopOnce sync.Once
	stopMu   sync.Mutex
	cancel   context.CancelFunc
	stopped  bool

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalFetched        atomic.Int64
	totalErrors         atomic.Int64
	totalSkipped        atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(client orders.Client, businessOrderID string, sink func(models.PositionUpdate)) *Poller {
	return &Poller{
		orders:            client,
		businessOrderID:   businessOrderID,
		sink:              sink,
		pollInterval:      10 * time.Second,
		fetchTimeout:      10 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		resetCh:           make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval, fetchTimeout time.Duration) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if fetchTimeout > 0 {
		p.fetchTimeout = fetchTimeout
	}
	return p
}

// WithRateLimit caps fetches per order per minute. A nil limiter disables it.
func (p *Poller) WithRateLimit(rl RateLimiter, perMinute int64) *Poller {
	p.rl = rl
	if perMinute > 0 {
		p.rateLimitPerMinute = perMinute
	}
	return p
}

// Trigger forces an immediate fetch (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Reset restarts the interval; fresh data from the feed makes the next poll
// less urgent.
func (p *Poller) Reset() {
	select {
	case p.resetCh <- struct{}{}:
	default:
	}
}

// Stop ends Run. Safe to call repeatedly, before or after Run.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.stopMu.Lock()
		defer p.stopMu.Unlock()
		p.stopped = true
		if p.cancel != nil {
			p.cancel()
		}
	})
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalFetched  int64      `json:"totalFetched"`
	TotalErrors   int64      `json:"totalErrors"`
	TotalSkipped  int64      `json:"totalSkipped"`
	LastError     string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalFetched: p.totalFetched.Load(),
		TotalErrors:  p.totalErrors.Load(),
		TotalSkipped: p.totalSkipped.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run polls until ctx is done or Stop is called.
func (p *Poller) Run(ctx context.Context) error {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return context.Canceled
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.stopMu.Unlock()

	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		case <-p.resetCh:
			t.Reset(p.pollInterval)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	if err := p.fetch(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.totalErrors.Add(1)
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		slog.Error("poll driver location", "business_order_id", p.businessOrderID, "error", err.Error())
	}
}

func (p *Poller) fetch(ctx context.Context) error {
	if p.rl != nil && p.rateLimitPerMinute > 0 {
		allowed, n, err := p.rl.Allow(ctx, "rl:poll:"+p.businessOrderID, p.rateLimitPerMinute, time.Minute)
		if err != nil {
			// fail open
			slog.Warn("poll rate limiter", "error", err.Error())
		} else if !allowed {
			p.totalSkipped.Add(1)
			slog.Warn("poll rate limit exceeded", "business_order_id", p.businessOrderID, "count", n)
			return nil
		}
	}

	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	loc, err := p.orders.GetDriverLocation(fctx, p.businessOrderID)
	if err != nil {
		return errors.Wrap(err, "get driver location")
	}
	p.totalFetched.Add(1)

	upd := orders.ToUpdate(loc)
	if !upd.Actionable() {
		slog.Debug("poll returned nothing actionable", "business_order_id", p.businessOrderID)
		return nil
	}
	p.sink(upd)
	return nil
}
