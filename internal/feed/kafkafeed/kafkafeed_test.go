package kafkafeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/stretchr/testify/require"
)

type record struct {
	key, value []byte
}

// chanConsumer hands queued records to the handler until ctx is done.
type chanConsumer struct {
	records chan record
}

func (c *chanConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-c.records:
			if err := handler(r.key, r.value); err != nil {
				return err
			}
		}
	}
}

func envelope(t *testing.T, data string) []byte {
	b, err := json.Marshal(messages.Envelope{Event: messages.EventDriverLocationUpdate, Data: data})
	require.NoError(t, err)
	return b
}

func TestHub_RoutesByKey(t *testing.T) {
	cons := &chanConsumer{records: make(chan record, 8)}
	hub := NewHub(cons)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- hub.Run(ctx) }()

	tr := hub.Transport()
	require.Eventually(t, func() bool { return tr.Connect(ctx) == nil }, time.Second, 5*time.Millisecond)

	c := feed.NewClient(tr, "")
	got := make(chan models.PositionUpdate, 4)
	require.NoError(t, c.Start(ctx, "9", func(u models.PositionUpdate) { got <- u }))

	cons.records <- record{key: []byte("driver-location-8"), value: envelope(t, `{"s":1}`)}
	cons.records <- record{key: []byte("driver-location-9"), value: []byte(`not json`)}
	cons.records <- record{key: []byte("driver-location-9"), value: envelope(t, `{"s":5}`)}

	select {
	case u := <-got:
		require.Equal(t, models.StatusEnRoute, *u.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}

	c.Stop()
	cons.records <- record{key: []byte("driver-location-9"), value: envelope(t, `{"s":2}`)}

	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)
	require.Len(t, got, 0)
}

func TestTransport_ConnectWithoutRun(t *testing.T) {
	hub := NewHub(&chanConsumer{records: make(chan record)})
	hub.connectWait = 20 * time.Millisecond
	err := hub.Transport().Connect(context.Background())
	require.True(t, errors.Is(err, ErrHubStopped))
}

func TestTransport_ConnectWaitsForRun(t *testing.T) {
	hub := NewHub(&chanConsumer{records: make(chan record)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan error, 1)
	go func() { connected <- hub.Transport().Connect(ctx) }()

	time.Sleep(20 * time.Millisecond)
	runErr := make(chan error, 1)
	go func() { runErr <- hub.Run(ctx) }()

	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return")
	}

	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)
	require.ErrorIs(t, hub.Transport().Connect(context.Background()), ErrHubStopped)
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	cons := &chanConsumer{records: make(chan record, subscriptionBuffer*2)}
	hub := NewHub(cons)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	tr := hub.Transport()
	require.NoError(t, tr.Connect(ctx))

	release := make(chan struct{})
	defer close(release)
	slow, err := tr.Subscribe(ctx, "driver-location-1")
	require.NoError(t, err)
	slow.Bind(messages.EventDriverLocationUpdate, func([]byte) { <-release })

	fast, err := tr.Subscribe(ctx, "driver-location-2")
	require.NoError(t, err)
	got := make(chan []byte, 1)
	fast.Bind(messages.EventDriverLocationUpdate, func(b []byte) { got <- b })

	// Enough records to fill the stuck subscription's queue and overflow it.
	for i := 0; i < subscriptionBuffer+3; i++ {
		cons.records <- record{key: []byte("driver-location-1"), value: envelope(t, `{"s":5}`)}
	}
	cons.records <- record{key: []byte("driver-location-2"), value: envelope(t, `{"s":1}`)}

	select {
	case b := <-got:
		require.JSONEq(t, `{"s":1}`, string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("record for the second channel was not delivered")
	}
	require.Eventually(t, func() bool { return hub.Dropped() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tr.Disconnect())
}
