package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/DriverTrack/internal/animation"
	"github.com/BearBump/DriverTrack/internal/cache"
	"github.com/BearBump/DriverTrack/internal/integrations/telephony"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/status"
	"github.com/pkg/errors"
)

var (
	ErrSessionNotFound = errors.New("tracking session not found")
	ErrSessionExists   = errors.New("tracking session already active")
	ErrSessionClosed   = errors.New("tracking session closed")
	ErrNoLastDelivery  = errors.New("no last delivery order for device")
	ErrNoStorePhone    = errors.New("store phone number unknown")
	ErrCallsDisabled   = errors.New("calls are not supported")
	ErrInvalidArgument = errors.New("invalid argument")
)

type FeedClient interface {
	Start(ctx context.Context, orderID string, handler func(models.PositionUpdate)) error
	Stop()
}

type RefreshPoller interface {
	Run(ctx context.Context) error
	Trigger()
	Reset()
	Stop()
}

type LastDeliveryRepository interface {
	GetLastDeliveryOrder(ctx context.Context, deviceID string) (models.LastDeliveryOrder, bool, error)
	SaveLastDeliveryOrder(ctx context.Context, o models.LastDeliveryOrder) error
	ClearLastDeliveryOrder(ctx context.Context, deviceID string) error
}

type PositionRepository interface {
	RecordPosition(ctx context.Context, p models.DriverPosition) error
	ListDriverPositions(ctx context.Context, orderID string, limit int) ([]*models.DriverPosition, error)
}

type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, sessionID string, info models.SessionInfo, n status.CompletionNotice) error
}

type Deps struct {
	Animation animation.Config

	NewFeed   func() FeedClient
	NewPoller func(businessOrderID string, sink func(models.PositionUpdate)) RefreshPoller

	LastDelivery LastDeliveryRepository
	Positions    PositionRepository
	Cache        cache.BytesCache
	CacheTTL     time.Duration
	Notifier     CompletionNotifier
	Launcher     telephony.Launcher

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// finishedRetention is how long a session that ended on its own stays
// readable after its last event.
const finishedRetention = 10 * time.Minute

type finishedSession struct {
	sess *Session
	at   time.Time
}

// Service owns the tracking sessions, one per order. Sessions that end on a
// terminal status move to finished, where Get and Subscribe still see their
// final state until finishedRetention passes.
type Service struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
	finished map[string]finishedSession
}

func New(deps Deps) *Service {
	if deps.Animation == (animation.Config{}) {
		deps.Animation = animation.DefaultConfig()
	}
	return &Service{
		deps:     deps,
		sessions: map[string]*Session{},
		finished: map[string]finishedSession{},
	}
}

// Open starts tracking info.OrderID. An order with a live session is
// rejected; a finished one is replaced.
func (s *Service) Open(ctx context.Context, info models.SessionInfo) (Snapshot, error) {
	if info.OrderID == "" {
		return Snapshot{}, errors.Wrap(ErrInvalidArgument, "order_id is required")
	}
	if info.BusinessOrderID == "" {
		return Snapshot{}, errors.Wrap(ErrInvalidArgument, "business_order_id is required")
	}

	s.mu.Lock()
	if cur, ok := s.sessions[info.OrderID]; ok && !cur.Snapshot().Closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionExists
	}
	sess := newSession(info, s.deps)
	s.sessions[info.OrderID] = sess
	delete(s.finished, info.OrderID)
	s.mu.Unlock()

	sess.Start(ctx)
	go s.retire(sess)
	slog.Info("tracking session opened",
		"session_id", sess.ID(), "order_id", info.OrderID, "from_last_delivery", info.FromLastDelivery)
	return sess.Snapshot(), nil
}

// OpenLastDelivery resumes tracking of the device's most recent order.
func (s *Service) OpenLastDelivery(ctx context.Context, deviceID string) (Snapshot, error) {
	if deviceID == "" {
		return Snapshot{}, errors.Wrap(ErrInvalidArgument, "device_id is required")
	}
	if s.deps.LastDelivery == nil {
		return Snapshot{}, ErrNoLastDelivery
	}
	o, ok, err := s.deps.LastDelivery.GetLastDeliveryOrder(ctx, deviceID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "load last delivery order")
	}
	if !ok {
		return Snapshot{}, ErrNoLastDelivery
	}

	label := o.StoreName
	if o.PostCode != "" {
		label = o.PostCode
	}
	return s.Open(ctx, models.SessionInfo{
		OrderID:          o.OrderID,
		BusinessOrderID:  o.BusinessOrderID,
		DeviceID:         o.DeviceID,
		StorePhone:       o.StorePhone,
		DestinationLabel: label,
		Destination:      o.Destination,
		FromLastDelivery: true,
	})
}

// RememberLastDelivery stores the order the device should resume on its
// next launch.
func (s *Service) RememberLastDelivery(ctx context.Context, o models.LastDeliveryOrder) error {
	if o.DeviceID == "" || o.OrderID == "" || o.BusinessOrderID == "" {
		return errors.Wrap(ErrInvalidArgument, "device_id, order_id and business_order_id are required")
	}
	if s.deps.LastDelivery == nil {
		return errors.New("last delivery storage is not configured")
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.deps.now()
	}
	return s.deps.LastDelivery.SaveLastDeliveryOrder(ctx, o)
}

func (s *Service) Get(orderID string) (Snapshot, error) {
	sess, err := s.session(orderID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Close ends and forgets the session of orderID.
func (s *Service) Close(orderID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[orderID]
	delete(s.sessions, orderID)
	if f, done := s.finished[orderID]; done && !ok {
		sess, ok = f.sess, true
	}
	delete(s.finished, orderID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	slog.Info("tracking session closed", "session_id", sess.ID(), "order_id", orderID)
	return nil
}

// Refresh triggers an immediate poll, as when the map screen regains focus.
func (s *Service) Refresh(orderID string) error {
	sess, err := s.session(orderID)
	if err != nil {
		return err
	}
	return sess.Refresh()
}

func (s *Service) SetOverlay(orderID string, proportion float64) (Snapshot, error) {
	sess, err := s.session(orderID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := sess.SetOverlayProportion(proportion); err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// CallStore starts a call to the store of orderID and returns the tel: URI.
func (s *Service) CallStore(ctx context.Context, orderID string) (string, error) {
	sess, err := s.session(orderID)
	if err != nil {
		return "", err
	}
	if s.deps.Launcher == nil || !s.deps.Launcher.CanPlaceCalls() {
		return "", ErrCallsDisabled
	}
	info := sess.Info()
	if info.StorePhone == nil || *info.StorePhone == "" {
		return "", ErrNoStorePhone
	}
	return s.deps.Launcher.Call(ctx, *info.StorePhone)
}

func (s *Service) Subscribe(orderID string) (<-chan Event, func(), error) {
	sess, err := s.session(orderID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.Subscribe()
	return ch, cancel, nil
}

func (s *Service) ListPositions(ctx context.Context, orderID string, limit int) ([]*models.DriverPosition, error) {
	if orderID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "order_id is required")
	}
	if s.deps.Positions == nil {
		return []*models.DriverPosition{}, nil
	}
	return s.deps.Positions.ListDriverPositions(ctx, orderID, limit)
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = map[string]*Session{}
	s.finished = map[string]finishedSession{}
	s.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
}

// Len is the number of live sessions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// retire moves sess to finished once it ends, unless Close or a newer
// session already took its place.
func (s *Service) retire(sess *Session) {
	<-sess.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	orderID := sess.Info().OrderID
	if s.sessions[orderID] != sess {
		return
	}
	delete(s.sessions, orderID)

	now := s.deps.now()
	s.finished[orderID] = finishedSession{sess: sess, at: now}
	for id, f := range s.finished {
		if now.Sub(f.at) > finishedRetention {
			delete(s.finished, id)
		}
	}
}

func (s *Service) session(orderID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[orderID]; ok {
		return sess, nil
	}
	if f, ok := s.finished[orderID]; ok && s.deps.now().Sub(f.at) <= finishedRetention {
		return f.sess, nil
	}
	return nil, ErrSessionNotFound
}
