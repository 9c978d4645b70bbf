package region

import (
	"math"

	"github.com/BearBump/DriverTrack/internal/models"
)

const (
	// EdgePadding widens the bounding box so markers do not sit on the map edge.
	EdgePadding = 1.3
	// MinSpan keeps a single-marker region from collapsing to a point.
	MinSpan = 0.005
)

// Controller keeps a map region that contains the driver and destination
// markers, leaving room for a bottom overlay card.
// It is not safe for concurrent use; the owning session serialises calls.
type Controller struct {
	driver      *models.Coordinate
	destination *models.Coordinate
	overlay     float64

	region  models.MapRegion
	hasView bool
}

func New() *Controller {
	return &Controller{}
}

func (c *Controller) SetDriver(p models.Coordinate) models.MapRegion {
	c.driver = &p
	return c.recompute()
}

func (c *Controller) SetDestination(p models.Coordinate) models.MapRegion {
	c.destination = &p
	return c.recompute()
}

// SetOverlayProportion sets the height of the bottom overlay as a proportion
// of the latitude span. Negative values are treated as 0.
func (c *Controller) SetOverlayProportion(p float64) models.MapRegion {
	if p < 0 || math.IsNaN(p) {
		p = 0
	}
	c.overlay = p
	return c.recompute()
}

// Recompute rebuilds the region from the current markers.
func (c *Controller) Recompute() models.MapRegion {
	return c.recompute()
}

func (c *Controller) Region() (models.MapRegion, bool) {
	return c.region, c.hasView
}

func (c *Controller) recompute() models.MapRegion {
	var points []models.Coordinate
	if c.driver != nil {
		points = append(points, *c.driver)
	}
	if c.destination != nil {
		points = append(points, *c.destination)
	}
	if len(points) == 0 {
		return c.region
	}

	minLat, maxLat, minLon, maxLon := bounds(points)

	if c.overlay > 0 {
		span := maxLat - minLat
		if span < MinSpan {
			span = MinSpan
		}
		pushed := minLat - span*c.overlay
		if pushed >= -90 {
			minLat = pushed
		}
	}

	c.region = fit(minLat, maxLat, minLon, maxLon)
	c.hasView = true
	return c.region
}

func bounds(points []models.Coordinate) (minLat, maxLat, minLon, maxLon float64) {
	minLat, maxLat = points[0].Latitude, points[0].Latitude
	minLon, maxLon = points[0].Longitude, points[0].Longitude
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Latitude)
		maxLat = math.Max(maxLat, p.Latitude)
		minLon = math.Min(minLon, p.Longitude)
		maxLon = math.Max(maxLon, p.Longitude)
	}
	return minLat, maxLat, minLon, maxLon
}

func fit(minLat, maxLat, minLon, maxLon float64) models.MapRegion {
	latDelta := math.Max((maxLat-minLat)*EdgePadding, MinSpan)
	lonDelta := math.Max((maxLon-minLon)*EdgePadding, MinSpan)
	return models.MapRegion{
		Center: models.Coordinate{
			Latitude:  (minLat + maxLat) / 2,
			Longitude: (minLon + maxLon) / 2,
		},
		LatitudeDelta:  math.Min(latDelta, 180),
		LongitudeDelta: math.Min(lonDelta, 360),
	}
}
