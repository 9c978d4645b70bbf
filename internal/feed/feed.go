package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BearBump/DriverTrack/internal/broker/messages"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/pkg/errors"
)

const DefaultChannelPrefix = "driver-location-"

var ErrNotActionable = errors.New("update carries neither position nor status")

// Transport is a pub/sub connection delivering JSON payloads per channel.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Disconnect() error
}

type Subscription interface {
	Bind(event string, handler func(data []byte))
	Unbind(event string)
	Unsubscribe() error
}

// Client follows the live position channel of one order.
type Client struct {
	transport Transport
	prefix    string

	mu        sync.Mutex
	sub       Subscription
	connected bool
	channel   string
}

func NewClient(t Transport, channelPrefix string) *Client {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Client{transport: t, prefix: channelPrefix}
}

func (c *Client) ChannelName(orderID string) string {
	return c.prefix + orderID
}

// Start connects, subscribes to the order channel and delivers decoded updates
// to handler. Malformed payloads are logged and dropped.
func (c *Client) Start(ctx context.Context, orderID string, handler func(models.PositionUpdate)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return errors.Errorf("feed already started on %s", c.channel)
	}

	if err := c.transport.Connect(ctx); err != nil {
		return errors.Wrap(err, "feed connect")
	}
	c.connected = true

	channel := c.ChannelName(orderID)
	sub, err := c.transport.Subscribe(ctx, channel)
	if err != nil {
		_ = c.transport.Disconnect()
		c.connected = false
		return errors.Wrap(err, "feed subscribe")
	}

	sub.Bind(messages.EventDriverLocationUpdate, func(data []byte) {
		upd, err := Decode(data)
		if err != nil {
			slog.Warn("drop driver location update", "channel", channel, "error", err.Error())
			return
		}
		handler(upd)
	})

	c.sub = sub
	c.channel = channel
	slog.Info("feed subscribed", "channel", channel)
	return nil
}

// Stop unbinds, unsubscribes and disconnects. Safe to call repeatedly and
// when Start was never called.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		c.sub.Unbind(messages.EventDriverLocationUpdate)
		if err := c.sub.Unsubscribe(); err != nil {
			slog.Warn("feed unsubscribe", "channel", c.channel, "error", err.Error())
		}
		c.sub = nil
	}
	if c.connected {
		if err := c.transport.Disconnect(); err != nil {
			slog.Warn("feed disconnect", "channel", c.channel, "error", err.Error())
		}
		c.connected = false
	}
}

// Decode parses a driver_location_update payload.
func Decode(data []byte) (models.PositionUpdate, error) {
	var msg messages.DriverLocationUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.PositionUpdate{}, errors.Wrap(err, "decode driver location update")
	}

	var upd models.PositionUpdate
	if msg.Lg != nil && msg.Lt != nil {
		upd.Position = &models.Coordinate{Latitude: *msg.Lt, Longitude: *msg.Lg}
	}
	if msg.S != nil {
		st := models.DeliveryStatus(*msg.S)
		upd.Status = &st
	}
	for _, p := range msg.Mov {
		upd.Movement = append(upd.Movement, models.Coordinate{Latitude: p.Lt, Longitude: p.Lg})
	}

	if !upd.Actionable() {
		return models.PositionUpdate{}, ErrNotActionable
	}
	return upd, nil
}

// Path is the movement points followed by the final position, if any.
func Path(upd models.PositionUpdate) []models.Coordinate {
	if len(upd.Movement) == 0 {
		return nil
	}
	path := append([]models.Coordinate(nil), upd.Movement...)
	if upd.Position != nil {
		path = append(path, *upd.Position)
	}
	return path
}
