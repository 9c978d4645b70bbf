package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// MaxAge drops records older than this without handing them on.
	// Zero keeps everything.
	MaxAge time.Duration
}

// Consumer reads driver location records. A position is only worth showing
// while it is fresh, so a reader that falls behind skips stale records.
type Consumer struct {
	r      messageReader
	maxAge time.Duration
	now    func() time.Time

	handled atomic.Int64
	stale   atomic.Int64
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.LastOffset,
		MaxWait:           500 * time.Millisecond,
	}
	if cfg.GroupID != "" {
		rc.GroupTopics = []string{cfg.Topic}
	} else {
		rc.Topic = cfg.Topic
	}
	c := newConsumerWithReader(kafka.NewReader(rc))
	c.maxAge = cfg.MaxAge
	return c
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, now: time.Now}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Handled and Stale count records passed to the handler and records skipped
// for age.
func (c *Consumer) Handled() int64 { return c.handled.Load() }
func (c *Consumer) Stale() int64   { return c.stale.Load() }

// Consume hands every fresh record to handler and commits it once handled.
// Stale records are committed unseen. A handler error stops consumption
// without committing the record.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch driver location")
		}
		if c.isStale(msg) {
			c.stale.Add(1)
			slog.Debug("skip stale driver location", "key", string(msg.Key), "age", c.now().Sub(msg.Time).String())
		} else {
			if err := handler(msg.Key, msg.Value); err != nil {
				return errors.Wrapf(err, "handle driver location %s", msg.Key)
			}
			c.handled.Add(1)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit driver location")
		}
	}
}

func (c *Consumer) isStale(msg kafka.Message) bool {
	if c.maxAge <= 0 || msg.Time.IsZero() {
		return false
	}
	return c.now().Sub(msg.Time) > c.maxAge
}
