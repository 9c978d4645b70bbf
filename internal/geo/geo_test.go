package geo

import (
	"math"
	"testing"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
)

const tol = 1e-9

func TestInterpolate_Endpoints(t *testing.T) {
	p1 := models.Coordinate{Latitude: 37.33, Longitude: -122.03}
	p2 := models.Coordinate{Latitude: 37.335, Longitude: -122.04}

	got, _ := Interpolate(p1, p2, 0)
	require.True(t, scalar.EqualWithinAbs(p1.Latitude, got.Latitude, tol))
	require.True(t, scalar.EqualWithinAbs(p1.Longitude, got.Longitude, tol))

	got, _ = Interpolate(p1, p2, 1)
	require.True(t, scalar.EqualWithinAbs(p2.Latitude, got.Latitude, tol))
	require.True(t, scalar.EqualWithinAbs(p2.Longitude, got.Longitude, tol))
}

func TestInterpolate_EquatorMidpoint(t *testing.T) {
	got, bearing := Interpolate(
		models.Coordinate{Latitude: 0, Longitude: 0},
		models.Coordinate{Latitude: 0, Longitude: 90},
		0.5,
	)
	require.InDelta(t, 0, got.Latitude, tol)
	require.InDelta(t, 45, got.Longitude, tol)
	require.InDelta(t, 90, bearing, tol)
}

func TestInterpolate_MeridianQuarter(t *testing.T) {
	got, bearing := Interpolate(
		models.Coordinate{Latitude: 0, Longitude: 10},
		models.Coordinate{Latitude: 40, Longitude: 10},
		0.25,
	)
	require.InDelta(t, 10, got.Latitude, 1e-6)
	require.InDelta(t, 10, got.Longitude, 1e-6)
	require.InDelta(t, 0, bearing, tol)
}

func TestInterpolate_CoincidentPoints(t *testing.T) {
	p := models.Coordinate{Latitude: 56.41, Longitude: -5.48}
	got, bearing := Interpolate(p, p, 0.5)
	require.Equal(t, p, got)
	require.Equal(t, 0.0, bearing)
	require.False(t, math.IsNaN(got.Latitude))
}

func TestInterpolate_ClampsFraction(t *testing.T) {
	p1 := models.Coordinate{Latitude: 1, Longitude: 1}
	p2 := models.Coordinate{Latitude: 2, Longitude: 2}

	below, _ := Interpolate(p1, p2, -0.5)
	require.InDelta(t, p1.Latitude, below.Latitude, tol)

	above, _ := Interpolate(p1, p2, 1.5)
	require.InDelta(t, p2.Latitude, above.Latitude, tol)
}

func TestBearing(t *testing.T) {
	origin := models.Coordinate{}
	require.InDelta(t, 0, Bearing(origin, models.Coordinate{Latitude: 1}), tol)
	require.InDelta(t, 90, Bearing(origin, models.Coordinate{Longitude: 1}), tol)
	require.InDelta(t, 180, Bearing(origin, models.Coordinate{Latitude: -1}), tol)
	require.InDelta(t, 270, Bearing(origin, models.Coordinate{Longitude: -1}), tol)
	require.Equal(t, 0.0, Bearing(origin, origin))
}
