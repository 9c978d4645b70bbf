package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_CallsHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("driver-location-B-1"), Value: []byte(`{"event":"driver_location_update"}`)}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch driver location")
	require.Equal(t, []byte("driver-location-B-1"), gotK)
	require.Equal(t, []byte(`{"event":"driver_location_update"}`), gotV)
	require.Len(t, fr.committed, 1)
	require.Equal(t, int64(1), c.Handled())
}

func TestConsumer_Consume_HandlerErrorStopsWithoutCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(k, v []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
	require.Zero(t, c.Handled())
}

func TestConsumer_Consume_SkipsStaleRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fr := &fakeReader{msgs: []kafka.Message{
		{Key: []byte("old"), Time: now.Add(-time.Minute)},
		{Key: []byte("fresh"), Time: now.Add(-time.Second)},
		{Key: []byte("untimed")},
	}}
	c := newConsumerWithReader(fr)
	c.maxAge = 10 * time.Second
	c.now = func() time.Time { return now }

	var seen []string
	_ = c.Consume(context.Background(), func(k, v []byte) error {
		seen = append(seen, string(k))
		return nil
	})
	require.Equal(t, []string{"fresh", "untimed"}, seen)
	require.Len(t, fr.committed, 3)
	require.Equal(t, int64(1), c.Stale())
	require.Equal(t, int64(2), c.Handled())
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:0"}, Topic: "driver.location", GroupID: "g"})
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
