package fake

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
)

// FakeClient stands in for the order service in local runs. Each business
// order gets a deterministic origin; the driver circles it slowly and the
// order stays en route.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

func (f *FakeClient) GetDriverLocation(ctx context.Context, businessOrderID string) (models.DriverLocation, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(businessOrderID))
	v := h.Sum32()

	baseLat := 51.0 + float64(v%1000)/1000
	baseLng := -1.0 + float64((v/1000)%1000)/1000

	angle := float64(f.now().Unix()%360) * math.Pi / 180
	st := int(models.StatusEnRoute)

	return models.DriverLocation{
		Driver: &models.DriverInfo{
			Name: "Test Driver",
			Lat:  baseLat + 0.002*math.Sin(angle),
			Lng:  baseLng + 0.002*math.Cos(angle),
		},
		Delivery: &models.DeliveryInfo{Lat: baseLat, Lng: baseLng, Status: &st},
	}, nil
}
