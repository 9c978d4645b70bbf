package pgdelivery

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGDelivery_RepoFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "drivertrack_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/drivertrack_test?sslmode=disable"
	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	// last delivery reference
	_, ok, err := st.GetLastDeliveryOrder(ctx, "dev-1")
	require.NoError(t, err)
	require.False(t, ok)

	phone := "+441315550100"
	require.NoError(t, st.SaveLastDeliveryOrder(ctx, models.LastDeliveryOrder{
		DeviceID:        "dev-1",
		OrderID:         "o-1",
		BusinessOrderID: "B-1",
		StoreName:       "Corner Shop",
		StorePhone:      &phone,
		PostCode:        "EH1 1AA",
		Destination:     &models.Coordinate{Latitude: 55.95, Longitude: -3.19},
	}))
	require.NoError(t, st.SaveLastDeliveryOrder(ctx, models.LastDeliveryOrder{
		DeviceID:        "dev-1",
		OrderID:         "o-2",
		BusinessOrderID: "B-2",
		StorePhone:      &phone,
		Destination:     &models.Coordinate{Latitude: 55.96, Longitude: -3.20},
	}))

	got, ok, err := st.GetLastDeliveryOrder(ctx, "dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B-2", got.BusinessOrderID)
	require.Equal(t, phone, *got.StorePhone)
	require.Equal(t, 55.96, got.Destination.Latitude)

	require.NoError(t, st.ClearLastDeliveryOrder(ctx, "dev-1"))
	require.NoError(t, st.ClearLastDeliveryOrder(ctx, "dev-1"))
	_, ok, err = st.GetLastDeliveryOrder(ctx, "dev-1")
	require.NoError(t, err)
	require.False(t, ok)

	// position history
	now := time.Now().UTC()
	require.NoError(t, st.RecordPosition(ctx, models.DriverPosition{
		OrderID: "o-2", Latitude: 1, Longitude: 2, Bearing: 45, Source: models.PositionSourceFeed, RecordedAt: now.Add(-time.Minute),
	}))
	require.NoError(t, st.RecordPosition(ctx, models.DriverPosition{
		OrderID: "o-2", Latitude: 3, Longitude: 4, Source: models.PositionSourcePoll, RecordedAt: now,
	}))

	ps, err := st.ListDriverPositions(ctx, "o-2", 10)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, 3.0, ps[0].Latitude)
	require.Equal(t, models.PositionSourcePoll, ps[0].Source)
	require.WithinDuration(t, now, ps[0].RecordedAt, time.Second)

	empty, err := st.ListDriverPositions(ctx, "nope", 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}
