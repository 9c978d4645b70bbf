package geo

import (
	"math"

	"github.com/BearBump/DriverTrack/internal/models"
	"gonum.org/v1/gonum/spatial/r3"
)

// Interpolate returns the great-circle point at fraction f of the way from p1
// to p2, together with the initial bearing from p1 toward p2 in degrees.
// Coincident points yield p1 and bearing 0.
func Interpolate(p1, p2 models.Coordinate, f float64) (models.Coordinate, float64) {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}

	lat1, lon1 := toRad(p1.Latitude), toRad(p1.Longitude)
	lat2, lon2 := toRad(p2.Latitude), toRad(p2.Longitude)

	delta := angularDistance(lat1, lon1, lat2, lon2)
	if delta == 0 || math.IsNaN(delta) {
		return p1, 0
	}

	a := math.Sin((1-f)*delta) / math.Sin(delta)
	b := math.Sin(f*delta) / math.Sin(delta)

	v := r3.Add(r3.Scale(a, unitVec(lat1, lon1)), r3.Scale(b, unitVec(lat2, lon2)))

	lat := math.Atan2(v.Z, math.Hypot(v.X, v.Y))
	lon := math.Atan2(v.Y, v.X)

	return models.Coordinate{Latitude: toDeg(lat), Longitude: toDeg(lon)}, Bearing(p1, p2)
}

// Bearing is the initial bearing from p1 to p2, normalised to [0, 360).
func Bearing(p1, p2 models.Coordinate) float64 {
	if p1 == p2 {
		return 0
	}
	lat1, lon1 := toRad(p1.Latitude), toRad(p1.Longitude)
	lat2, lon2 := toRad(p2.Latitude), toRad(p2.Longitude)

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if math.IsNaN(deg) {
		return 0
	}
	return deg
}

// angularDistance is the haversine central angle between two points in radians.
func angularDistance(lat1, lon1, lat2, lon2 float64) float64 {
	sinDLat := math.Sin((lat2 - lat1) / 2)
	sinDLon := math.Sin((lon2 - lon1) / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

func unitVec(lat, lon float64) r3.Vec {
	return r3.Vec{
		X: math.Cos(lat) * math.Cos(lon),
		Y: math.Cos(lat) * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
