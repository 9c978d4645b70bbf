package animation

import (
	"testing"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/stretchr/testify/suite"
)

type SchedulerSuite struct {
	suite.Suite
	s *Scheduler
}

func (s *SchedulerSuite) SetupTest() {
	s.s = New(Config{UpdateInterval: 5 * time.Second, StepsPerSegment: 4, Damping: 0.98})
}

func (s *SchedulerSuite) start() (models.DisplayPosition, []models.Coordinate) {
	from := models.DisplayPosition{Coordinate: models.Coordinate{Latitude: 37.32, Longitude: -122.05}}
	path := []models.Coordinate{
		{Latitude: 37.335, Longitude: -122.04},
		{Latitude: 37.33, Longitude: -122.03},
	}
	return from, path
}

func (s *SchedulerSuite) TestNew_Defaults() {
	sc := New(Config{})
	s.Equal(DefaultConfig(), sc.cfg)
}

func (s *SchedulerSuite) TestStart_TickInterval() {
	from, path := s.start()
	d := s.s.Start(from, path)
	// 5s * 0.98 / (2 segments * 4 steps)
	s.Equal(time.Duration(float64(5*time.Second)*0.98/8), d)
	s.True(s.s.Active())
	s.Equal(2, s.s.Remaining())
}

func (s *SchedulerSuite) TestStart_EmptyPath() {
	from, _ := s.start()
	s.Zero(s.s.Start(from, nil))
	s.False(s.s.Active())
}

func (s *SchedulerSuite) TestTick_EmitsOneAdvancePerPathPoint() {
	from, path := s.start()
	s.s.Start(from, path)

	advanced := 0
	ticks := 0
	var last Frame
	for s.s.Active() {
		last = s.s.Tick()
		ticks++
		if last.Advanced {
			advanced++
			s.Equal(path[advanced-1], last.Position.Coordinate)
		}
		s.Require().LessOrEqual(ticks, 100)
	}

	s.Equal(len(path), advanced)
	s.Equal(len(path)*4, ticks)
	s.True(last.Done)
	s.Equal(path[len(path)-1], last.Position.Coordinate)

	// further ticks are no-ops
	fr := s.s.Tick()
	s.False(fr.Advanced)
	s.False(fr.Done)
	s.Equal(path[len(path)-1], fr.Position.Coordinate)
}

func (s *SchedulerSuite) TestTick_IntermediateIsBetweenPoints() {
	from, path := s.start()
	s.s.Start(from, path)

	fr := s.s.Tick()
	s.False(fr.Advanced)
	s.Greater(fr.Position.Latitude, from.Latitude)
	s.Less(fr.Position.Latitude, path[0].Latitude)
	s.Equal(from.Coordinate, s.s.LastConfirmed().Coordinate)
}

func (s *SchedulerSuite) TestCancel_Idempotent() {
	from, path := s.start()
	s.s.Start(from, path)
	s.s.Tick()

	s.s.Cancel()
	s.s.Cancel()
	s.False(s.s.Active())
	s.Equal(0, s.s.Remaining())
}

func (s *SchedulerSuite) TestStart_ReplacesActiveBatch() {
	from, path := s.start()
	s.s.Start(from, path)
	for i := 0; i < 5; i++ {
		s.s.Tick()
	}
	confirmed := s.s.LastConfirmed()
	s.Equal(path[0], confirmed.Coordinate)

	next := []models.Coordinate{{Latitude: 37.34, Longitude: -122.02}}
	s.s.Start(confirmed, next)
	s.Equal(1, s.s.Remaining())

	advanced := 0
	for s.s.Active() {
		if s.s.Tick().Advanced {
			advanced++
		}
	}
	s.Equal(1, advanced)
	s.Equal(next[0], s.s.Current().Coordinate)
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}
