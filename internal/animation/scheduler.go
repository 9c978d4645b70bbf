package animation

import (
	"time"

	"github.com/BearBump/DriverTrack/internal/geo"
	"github.com/BearBump/DriverTrack/internal/models"
)

type Config struct {
	UpdateInterval  time.Duration // default: 5 seconds
	StepsPerSegment int           // default: 10
	Damping         float64       // default: 0.98
}

func DefaultConfig() Config {
	return Config{
		UpdateInterval:  5 * time.Second,
		StepsPerSegment: 10,
		Damping:         0.98,
	}
}

// Frame is the result of one tick.
type Frame struct {
	Position models.DisplayPosition
	// Advanced is set when the last confirmed position moved to the next path point.
	Advanced bool
	// Done is set on the tick that completes the final segment.
	Done bool
}

// Scheduler plays a movement path back as a timed sequence of positions.
// It is not safe for concurrent use; the owning session drives it.
type Scheduler struct {
	cfg Config

	path          []models.Coordinate
	lastConfirmed models.Coordinate
	segment       int
	step          int
	active        bool
	current       models.DisplayPosition
}

func New(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.StepsPerSegment <= 0 {
		cfg.StepsPerSegment = def.StepsPerSegment
	}
	if cfg.Damping <= 0 || cfg.Damping > 1 {
		cfg.Damping = def.Damping
	}
	return &Scheduler{cfg: cfg}
}

// Start replaces any active batch and begins animating from `from` through
// path. It returns the tick interval, or 0 when path is empty.
func (s *Scheduler) Start(from models.DisplayPosition, path []models.Coordinate) time.Duration {
	s.Cancel()
	if len(path) == 0 {
		return 0
	}
	s.path = append([]models.Coordinate(nil), path...)
	s.lastConfirmed = from.Coordinate
	s.current = from
	s.segment = 0
	s.step = 0
	s.active = true
	return s.TickInterval(len(path))
}

// TickInterval is (updateInterval × damping) / (segments × stepsPerSegment).
func (s *Scheduler) TickInterval(segments int) time.Duration {
	if segments <= 0 {
		return 0
	}
	total := float64(s.cfg.UpdateInterval) * s.cfg.Damping
	d := time.Duration(total / float64(segments*s.cfg.StepsPerSegment))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// Tick advances one render step. Ticks on an inactive scheduler return the
// current position unchanged.
func (s *Scheduler) Tick() Frame {
	if !s.active {
		return Frame{Position: s.current}
	}

	s.step++
	next := s.path[s.segment]

	if s.step >= s.cfg.StepsPerSegment {
		bearing := geo.Bearing(s.lastConfirmed, next)
		if s.lastConfirmed == next {
			bearing = s.current.Bearing
		}
		s.lastConfirmed = next
		s.segment++
		s.step = 0
		s.current = models.DisplayPosition{Coordinate: next, Bearing: bearing}

		fr := Frame{Position: s.current, Advanced: true}
		if s.segment >= len(s.path) {
			s.active = false
			s.path = nil
			fr.Done = true
		}
		return fr
	}

	pos, bearing := geo.Interpolate(s.lastConfirmed, next, float64(s.step)/float64(s.cfg.StepsPerSegment))
	if s.lastConfirmed == next {
		bearing = s.current.Bearing
	}
	s.current = models.DisplayPosition{Coordinate: pos, Bearing: bearing}
	return Frame{Position: s.current}
}

// Cancel drops the active batch. Safe to call repeatedly.
func (s *Scheduler) Cancel() {
	s.active = false
	s.path = nil
	s.step = 0
	s.segment = 0
}

func (s *Scheduler) Active() bool { return s.active }

// LastConfirmed is the last path point the animation fully reached.
func (s *Scheduler) LastConfirmed() models.DisplayPosition {
	if !s.active {
		return s.current
	}
	return models.DisplayPosition{Coordinate: s.lastConfirmed, Bearing: s.current.Bearing}
}

func (s *Scheduler) Current() models.DisplayPosition { return s.current }

// Remaining is the number of path points not yet confirmed.
func (s *Scheduler) Remaining() int {
	if !s.active {
		return 0
	}
	return len(s.path) - s.segment
}
