package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DriverTrack/internal/animation"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/BearBump/DriverTrack/internal/geo"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/region"
	"github.com/BearBump/DriverTrack/internal/status"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	observerBuffer = 64
	persistBuffer  = 64
	sideEffectTTL  = 5 * time.Second
)

// Session tracks one order. All state below the ops channel is owned by the
// loop goroutine; everything else reaches it by posting closures.
type Session struct {
	id   string
	info models.SessionInfo
	deps Deps

	feed   FeedClient
	poller RefreshPoller

	ops       chan func()
	done      chan struct{}
	persistCh chan models.DriverPosition
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	started   atomic.Bool
	completed atomic.Bool

	last atomic.Pointer[Snapshot]

	sched    *animation.Scheduler
	region   *region.Controller
	machine  *status.Machine
	display  *models.DisplayPosition
	ticker   *time.Ticker
	message  string
	notice   *status.CompletionNotice
	tornDown bool

	obsMu     sync.Mutex
	observers map[int]chan Event
	nextObs   int
	closedObs bool
}

func newSession(info models.SessionInfo, deps Deps) *Session {
	s := &Session{
		id:        uuid.NewString(),
		info:      info,
		deps:      deps,
		ops:       make(chan func()),
		done:      make(chan struct{}),
		persistCh: make(chan models.DriverPosition, persistBuffer),
		sched:     animation.New(deps.Animation),
		region:    region.New(),
		machine:   status.NewMachine(),
		observers: map[int]chan Event{},
	}
	s.feed = deps.NewFeed()
	s.poller = deps.NewPoller(info.BusinessOrderID, s.onPoll)
	s.publish(EventRegion)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Info() models.SessionInfo { return s.info }

// Done is closed once the session has torn down and its loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the latest published state. It never blocks.
func (s *Session) Snapshot() Snapshot {
	return *s.last.Load()
}

// Start seeds the session from the cached position, subscribes to the live
// feed and starts the refresh poller. A feed that fails to start is logged;
// the poller still serves snapshots.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
		s.started.Store(true)
		s.init(ctx)
		go s.persistLoop()
		go s.loop()
	})
}

func (s *Session) init(ctx context.Context) {
	if s.info.Destination != nil {
		s.region.SetDestination(*s.info.Destination)
	}
	if p, ok := s.cachedPosition(ctx); ok {
		s.display = &p
		s.region.SetDriver(p.Coordinate)
	}

	if err := s.feed.Start(ctx, s.info.OrderID, s.onFeed); err != nil {
		slog.Warn("live feed unavailable, relying on refresh poller",
			"order_id", s.info.OrderID, "error", err.Error())
	}

	go func() {
		if err := s.poller.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("refresh poller stopped", "order_id", s.info.OrderID, "error", err.Error())
		}
	}()
	s.poller.Trigger()
	s.publish(EventConfirmed)
}

// Close tears the session down. Safe to call repeatedly and after a terminal
// status already ended the session.
func (s *Session) Close() {
	s.startOnce.Do(func() {
		s.teardown()
		s.publish(EventClosed)
		s.closeObservers()
		close(s.persistCh)
		close(s.done)
	})
	if s.started.Load() && s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Refresh asks the poller for an immediate fetch.
func (s *Session) Refresh() error {
	if s.Snapshot().Closed {
		return ErrSessionClosed
	}
	s.poller.Trigger()
	return nil
}

// SetOverlayProportion reserves the bottom share of the map for an overlay.
func (s *Session) SetOverlayProportion(p float64) error {
	return s.do(func() {
		s.region.SetOverlayProportion(p)
		s.publish(EventRegion)
	})
}

// Subscribe returns a channel of session events. Slow observers miss events
// rather than stall the session. The channel is closed when the session ends
// or cancel is called.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	ch := make(chan Event, observerBuffer)
	if s.closedObs {
		ch <- Event{Kind: EventClosed, Snapshot: s.Snapshot()}
		close(ch)
		return ch, func() {}
	}
	id := s.nextObs
	s.nextObs++
	s.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			if c, ok := s.observers[id]; ok {
				delete(s.observers, id)
				close(c)
			}
		})
	}
}

func (s *Session) do(fn func()) error {
	if !s.started.Load() {
		return ErrSessionClosed
	}
	select {
	case s.ops <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) loop() {
	defer close(s.done)
	defer close(s.persistCh)

	for {
		if s.tornDown {
			return
		}
		select {
		case <-s.ctx.Done():
			s.teardown()
			s.publish(EventClosed)
			s.closeObservers()
			return
		case op := <-s.ops:
			op()
		case <-s.tickC():
			s.onTick()
		}
	}
}

func (s *Session) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

func (s *Session) onFeed(upd models.PositionUpdate) {
	_ = s.do(func() { s.apply(upd, models.PositionSourceFeed) })
}

func (s *Session) onPoll(upd models.PositionUpdate) {
	_ = s.do(func() { s.apply(upd, models.PositionSourcePoll) })
}

// apply handles position before status so a terminal status still shows the
// final position.
func (s *Session) apply(upd models.PositionUpdate, source string) {
	if s.tornDown {
		return
	}

	terminal := upd.Status != nil && upd.Status.Terminal()
	switch {
	case source == models.PositionSourceFeed && len(upd.Movement) > 0 && terminal:
		s.settle(feed.Path(upd))
	case source == models.PositionSourceFeed && len(upd.Movement) > 0:
		s.animate(feed.Path(upd))
	case upd.Position != nil:
		s.place(*upd.Position, source)
	}

	if upd.Status == nil {
		return
	}
	if source == models.PositionSourceFeed {
		s.poller.Reset()
	}
	s.applyStatus(*upd.Status)
}

func (s *Session) animate(path []models.Coordinate) {
	from, ok := s.animationStart()
	if !ok {
		first := models.DisplayPosition{Coordinate: path[0]}
		s.setDisplay(first, models.PositionSourceFeed)
		path = path[1:]
		if len(path) == 0 {
			s.publish(EventConfirmed)
			return
		}
		from = first
	}

	s.stopTicker()
	interval := s.sched.Start(from, path)
	if interval <= 0 {
		return
	}
	s.ticker = time.NewTicker(interval)
	s.publish(EventPosition)
}

// animationStart picks where a new batch animates from. A batch arriving
// mid-animation snaps the marker to the last confirmed point first.
func (s *Session) animationStart() (models.DisplayPosition, bool) {
	if s.sched.Active() {
		p := s.sched.LastConfirmed()
		s.sched.Cancel()
		s.display = &p
		s.region.SetDriver(p.Coordinate)
		s.publish(EventRegion)
		return p, true
	}
	if s.display == nil {
		return models.DisplayPosition{}, false
	}
	return *s.display, true
}

func (s *Session) onTick() {
	if !s.sched.Active() {
		s.stopTicker()
		return
	}
	fr := s.sched.Tick()
	pos := fr.Position
	s.display = &pos

	switch {
	case fr.Done:
		s.stopTicker()
		s.record(pos, models.PositionSourceFeed)
		s.region.SetDriver(pos.Coordinate)
		s.publish(EventConfirmed)
		s.publish(EventAnimationDone)
	case fr.Advanced:
		s.record(pos, models.PositionSourceFeed)
		s.publish(EventConfirmed)
	default:
		s.publish(EventPosition)
	}
}

// place applies an absolute position. It replaces any running animation.
func (s *Session) place(c models.Coordinate, source string) {
	s.sched.Cancel()
	s.stopTicker()

	p := models.DisplayPosition{Coordinate: c}
	if s.display != nil {
		p.Bearing = s.display.Bearing
		if s.display.Coordinate != c {
			p.Bearing = geo.Bearing(s.display.Coordinate, c)
		}
	}
	s.setDisplay(p, source)
	s.publish(EventConfirmed)
}

// settle jumps to the end of path. A batch that ends the delivery is not
// animated; the session stops right after it.
func (s *Session) settle(path []models.Coordinate) {
	if len(path) > 1 {
		s.sched.Cancel()
		s.stopTicker()
		prev := path[len(path)-2]
		last := path[len(path)-1]
		p := models.DisplayPosition{Coordinate: last}
		if prev != last {
			p.Bearing = geo.Bearing(prev, last)
		} else if s.display != nil {
			p.Bearing = s.display.Bearing
		}
		s.setDisplay(p, models.PositionSourceFeed)
		s.publish(EventConfirmed)
		return
	}
	s.place(path[len(path)-1], models.PositionSourceFeed)
}

func (s *Session) setDisplay(p models.DisplayPosition, source string) {
	s.display = &p
	s.region.SetDriver(p.Coordinate)
	s.record(p, source)
}

func (s *Session) applyStatus(code models.DeliveryStatus) {
	tr, err := s.machine.Apply(code)
	if err != nil {
		slog.Warn("ignore delivery status", "order_id", s.info.OrderID, "error", err.Error())
		return
	}
	if !tr.Changed {
		return
	}
	s.message = status.Message(tr.Current)
	s.publish(EventStatus)

	if tr.Terminal {
		s.complete(tr.Current)
	}
}

func (s *Session) complete(code models.DeliveryStatus) {
	canCall := s.deps.Launcher != nil && s.deps.Launcher.CanPlaceCalls()
	n := status.BuildNotice(s.info, code, canCall, s.deps.now())
	s.notice = &n
	s.completed.Store(true)

	s.teardown()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTTL)
	defer cancel()

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyCompletion(ctx, s.id, s.info, n); err != nil {
			slog.Error("publish delivery completion", "order_id", s.info.OrderID, "error", err.Error())
		}
	}
	if s.info.FromLastDelivery && s.info.DeviceID != "" && s.deps.LastDelivery != nil {
		if err := s.deps.LastDelivery.ClearLastDeliveryOrder(ctx, s.info.DeviceID); err != nil {
			slog.Error("clear last delivery order", "device_id", s.info.DeviceID, "error", err.Error())
		}
	}

	slog.Info("delivery tracking completed",
		"order_id", s.info.OrderID, "status", code.String(), "outcome", string(n.Outcome))
	s.publish(EventCompleted)
	s.closeObservers()
}

// teardown stops the feed and the poller exactly once.
func (s *Session) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	s.stopTicker()
	s.sched.Cancel()
	s.feed.Stop()
	s.poller.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) record(p models.DisplayPosition, source string) {
	pos := models.DriverPosition{
		OrderID:    s.info.OrderID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Bearing:    p.Bearing,
		Source:     source,
		RecordedAt: s.deps.now(),
	}
	select {
	case s.persistCh <- pos:
	default:
		slog.Warn("drop driver position write", "order_id", s.info.OrderID)
	}
}

func (s *Session) persistLoop() {
	for p := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTTL)
		if s.deps.Positions != nil {
			if err := s.deps.Positions.RecordPosition(ctx, p); err != nil {
				slog.Warn("record driver position", "order_id", p.OrderID, "error", err.Error())
			}
		}
		if s.deps.Cache != nil && s.deps.CacheTTL > 0 {
			b, _ := json.Marshal(models.DisplayPosition{
				Coordinate: models.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude},
				Bearing:    p.Bearing,
			})
			_ = s.deps.Cache.Set(ctx, positionKey(p.OrderID), b, s.deps.CacheTTL)
		}
		cancel()
	}

	// A finished delivery has no position worth resuming from.
	if s.completed.Load() && s.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTTL)
		defer cancel()
		_ = s.deps.Cache.Delete(ctx, positionKey(s.info.OrderID))
	}
}

func (s *Session) cachedPosition(ctx context.Context) (models.DisplayPosition, bool) {
	if s.deps.Cache == nil {
		return models.DisplayPosition{}, false
	}
	b, ok, err := s.deps.Cache.Get(ctx, positionKey(s.info.OrderID))
	if err != nil || !ok {
		return models.DisplayPosition{}, false
	}
	var p models.DisplayPosition
	if json.Unmarshal(b, &p) != nil {
		return models.DisplayPosition{}, false
	}
	return p, true
}

func (s *Session) publish(kind EventKind) {
	snap := s.snapshot()
	s.last.Store(&snap)

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, ch := range s.observers {
		select {
		case ch <- Event{Kind: kind, Snapshot: snap}:
		default:
		}
	}
}

func (s *Session) closeObservers() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	if s.closedObs {
		return
	}
	s.closedObs = true
	for id, ch := range s.observers {
		delete(s.observers, id)
		close(ch)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        s.id,
		OrderID:          s.info.OrderID,
		BusinessOrderID:  s.info.BusinessOrderID,
		DriverName:       s.info.DriverName,
		Destination:      s.info.Destination,
		DestinationLabel: s.info.DestinationLabel,
		Message:          s.message,
		Animating:        s.sched.Active(),
		Notice:           s.notice,
		Closed:           s.tornDown,
		UpdatedAt:        s.deps.now(),
	}
	if s.display != nil {
		p := *s.display
		snap.Driver = &p
	}
	if r, ok := s.region.Region(); ok {
		snap.Region = &r
	}
	if code, ok := s.machine.Current(); ok {
		c := int(code)
		snap.StatusCode = &c
		snap.Status = code.String()
	}
	return snap
}

func positionKey(orderID string) string {
	return fmt.Sprintf("driver:%s:position", orderID)
}
