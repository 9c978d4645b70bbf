package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/status"
	"github.com/pkg/errors"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaNotifier publishes messages.DeliveryCompleted keyed by order id.
type KafkaNotifier struct {
	pub      Publisher
	topic    string
	attempts int
	backoff  time.Duration
}

func NewKafkaNotifier(pub Publisher, topic string) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, topic: topic, attempts: 3, backoff: 200 * time.Millisecond}
}

func (n *KafkaNotifier) NotifyCompletion(ctx context.Context, sessionID string, info models.SessionInfo, notice status.CompletionNotice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return errors.Wrap(err, "marshal notice")
	}
	b, err := json.Marshal(messages.DeliveryCompleted{
		SessionID:       sessionID,
		OrderID:         info.OrderID,
		BusinessOrderID: info.BusinessOrderID,
		DeviceID:        info.DeviceID,
		Status:          notice.Code,
		Outcome:         string(notice.Outcome),
		CompletedAt:     notice.CreatedAt,
		Notice:          raw,
	})
	if err != nil {
		return errors.Wrap(err, "marshal delivery completed")
	}

	var lastErr error
	for i := 0; i < n.attempts; i++ {
		if lastErr = n.pub.Publish(ctx, n.topic, []byte(info.OrderID), b); lastErr == nil {
			return nil
		}
		slog.Warn("publish delivery completed failed, retrying",
			"order_id", info.OrderID, "attempt", i+1, "error", lastErr.Error())
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "publish delivery completed")
		case <-time.After(n.backoff * time.Duration(i+1)):
		}
	}
	return errors.Wrapf(lastErr, "publish delivery completed after %d attempts", n.attempts)
}
