package redisfeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/BearBump/DriverTrack/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestTransport_FeedClientReceivesUpdates(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tr := New(mr.Addr())
	c := feed.NewClient(tr, "")

	var mu sync.Mutex
	var got []models.PositionUpdate
	require.NoError(t, c.Start(ctx, "7", func(u models.PositionUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	}))

	pub := New(mr.Addr())
	t.Cleanup(func() { _ = pub.Disconnect() })

	require.NoError(t, pub.Publish(ctx, "driver-location-7", messages.EventDriverLocationUpdate, []byte(`{"lg":-5.48,"lt":56.41,"s":5}`)))
	require.NoError(t, pub.Publish(ctx, "driver-location-7", messages.EventDriverLocationUpdate, []byte(`{broken`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, 56.41, got[0].Position.Latitude)
	mu.Unlock()

	c.Stop()
	c.Stop()
}

func TestTransport_ConnectFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	tr := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, tr.Connect(ctx))
}
