package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/DriverTrack/config"
	"github.com/BearBump/DriverTrack/internal/animation"
	"github.com/BearBump/DriverTrack/internal/broker/kafka"
	"github.com/BearBump/DriverTrack/internal/cache"
	"github.com/BearBump/DriverTrack/internal/cache/rediscache"
	"github.com/BearBump/DriverTrack/internal/feed"
	"github.com/BearBump/DriverTrack/internal/feed/kafkafeed"
	"github.com/BearBump/DriverTrack/internal/feed/memfeed"
	"github.com/BearBump/DriverTrack/internal/feed/redisfeed"
	"github.com/BearBump/DriverTrack/internal/integrations/orders"
	"github.com/BearBump/DriverTrack/internal/integrations/orders/fake"
	"github.com/BearBump/DriverTrack/internal/integrations/orders/ordershttp"
	"github.com/BearBump/DriverTrack/internal/integrations/telephony"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/services/poller"
	"github.com/BearBump/DriverTrack/internal/services/tracking"
	"github.com/BearBump/DriverTrack/internal/storage/pgdelivery"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type storage interface {
	tracking.LastDeliveryRepository
	tracking.PositionRepository
}

// feedSource hands out one transport per session. run, when set, drives a
// shared reader and must be started before sessions connect.
type feedSource struct {
	newTransport func() feed.Transport
	run          func(ctx context.Context) error
	close        func()
}

// trackerFactories builds the external dependencies. The Redis client from
// newRedis is shared by the cache, the poll limiter and the Redis feed.
type trackerFactories struct {
	newStorage      func(cfg *config.Config) (st storage, closeFn func(), err error)
	newRedis        func(cfg *config.Config) (rc redis.UniversalClient, closeFn func())
	newCache        func(cfg *config.Config, rc redis.UniversalClient) cache.BytesCache
	newRateLimiter  func(cfg *config.Config, rc redis.UniversalClient) poller.RateLimiter
	newPublisher    func(cfg *config.Config) (pub tracking.Publisher, closeFn func())
	newOrdersClient func(cfg *config.Config) orders.Client
	newFeed         func(cfg *config.Config, rc redis.UniversalClient) feedSource
}

func defaultTrackerFactories() trackerFactories {
	return trackerFactories{
		newStorage: func(cfg *config.Config) (storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			st, err := pgdelivery.New(ctx, connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newRedis: func(cfg *config.Config) (redis.UniversalClient, func()) {
			c := redis.NewClient(&redis.Options{Addr: redisAddr(cfg)})
			return c, func() { _ = c.Close() }
		},
		newCache: func(cfg *config.Config, rc redis.UniversalClient) cache.BytesCache {
			return rediscache.NewWithClient(rc, rediscache.DefaultNamespace)
		},
		newRateLimiter: func(cfg *config.Config, rc redis.UniversalClient) poller.RateLimiter {
			return rediscache.NewRateLimiterWithClient(rc, rediscache.DefaultNamespace)
		},
		newPublisher: func(cfg *config.Config) (tracking.Publisher, func()) {
			p := kafka.NewProducer(kafkaBrokers(cfg))
			return p, func() { _ = p.Close() }
		},
		newOrdersClient: func(cfg *config.Config) orders.Client {
			if cfg.Tracker.OrdersMode == "http" && cfg.Tracker.OrdersBaseURL != "" {
				return ordershttp.New(cfg.Tracker.OrdersBaseURL, cfg.Tracker.OrdersAPIKey)
			}
			return fake.New()
		},
		newFeed: func(cfg *config.Config, rc redis.UniversalClient) feedSource {
			switch cfg.Tracker.FeedTransport {
			case "redis":
				return feedSource{
					newTransport: func() feed.Transport { return redisfeed.NewWithClient(rc) },
				}
			case "kafka":
				maxAge := 30 * time.Second
				if cfg.Kafka.MaxRecordAgeSeconds > 0 {
					maxAge = time.Duration(cfg.Kafka.MaxRecordAgeSeconds) * time.Second
				}
				cons := kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers: kafkaBrokers(cfg),
					Topic:   topicOr(cfg.Kafka.DriverLocationTopicName, "driver.location"),
					GroupID: instanceGroup(cfg.Kafka.ConsumerGroup),
					MaxAge:  maxAge,
				})
				hub := kafkafeed.NewHub(cons)
				return feedSource{
					newTransport: func() feed.Transport { return hub.Transport() },
					run:          hub.Run,
					close:        func() { _ = cons.Close() },
				}
			default:
				b := memfeed.NewBroker()
				return feedSource{newTransport: func() feed.Transport { return b.Transport() }}
			}
		},
	}
}

type trackerSettings struct {
	animation    animation.Config
	prefix       string
	pollInterval time.Duration
	pollTimeout  time.Duration
	pollRate     int64
	cacheTTL     time.Duration
	completedTo  string
}

func settingsFrom(cfg *config.Config) trackerSettings {
	s := trackerSettings{
		animation:    animation.DefaultConfig(),
		prefix:       cfg.Tracker.FeedChannelPrefix,
		pollInterval: time.Duration(cfg.Tracker.PollIntervalSeconds) * time.Second,
		pollTimeout:  time.Duration(cfg.Tracker.PollTimeoutSeconds) * time.Second,
		pollRate:     int64(cfg.Tracker.PollRateLimitPerMinute),
		cacheTTL:     time.Duration(cfg.Tracker.PositionCacheTTLSeconds) * time.Second,
		completedTo:  topicOr(cfg.Kafka.DeliveryCompletedTopicName, "delivery.completed"),
	}
	if cfg.Tracker.UpdateIntervalMillis > 0 {
		s.animation.UpdateInterval = time.Duration(cfg.Tracker.UpdateIntervalMillis) * time.Millisecond
	}
	if cfg.Tracker.StepsPerSegment > 0 {
		s.animation.StepsPerSegment = cfg.Tracker.StepsPerSegment
	}
	if cfg.Tracker.Damping > 0 {
		s.animation.Damping = cfg.Tracker.Damping
	}
	if s.prefix == "" {
		s.prefix = feed.DefaultChannelPrefix
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 10 * time.Second
	}
	if s.pollRate <= 0 {
		s.pollRate = 30
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 30 * time.Minute
	}
	return s
}

// buildService wires the tracking service. The returned cleanup releases
// every connection it opened.
func buildService(cfg *config.Config, f trackerFactories) (*tracking.Service, feedSource, func(), error) {
	set := settingsFrom(cfg)

	st, closeStorage, err := f.newStorage(cfg)
	if err != nil {
		return nil, feedSource{}, nil, err
	}
	rc, closeRedis := f.newRedis(cfg)
	pub, closePub := f.newPublisher(cfg)
	rl := f.newRateLimiter(cfg, rc)
	ordersClient := f.newOrdersClient(cfg)
	fs := f.newFeed(cfg, rc)

	svc := tracking.New(tracking.Deps{
		Animation: set.animation,
		NewFeed: func() tracking.FeedClient {
			return feed.NewClient(fs.newTransport(), set.prefix)
		},
		NewPoller: func(businessOrderID string, sink func(models.PositionUpdate)) tracking.RefreshPoller {
			return poller.New(ordersClient, businessOrderID, sink).
				WithSettings(set.pollInterval, set.pollTimeout).
				WithRateLimit(rl, set.pollRate)
		},
		LastDelivery: st,
		Positions:    st,
		Cache:        f.newCache(cfg, rc),
		CacheTTL:     set.cacheTTL,
		Notifier:     tracking.NewKafkaNotifier(pub, set.completedTo),
		Launcher:     telephony.NewLogLauncher(cfg.Tracker.CallsSupported),
	})

	cleanup := func() {
		svc.Shutdown()
		if fs.close != nil {
			fs.close()
		}
		if closeRedis != nil {
			closeRedis()
		}
		if closePub != nil {
			closePub()
		}
		if closeStorage != nil {
			closeStorage()
		}
	}
	return svc, fs, cleanup, nil
}

func RunTracker(ctx context.Context, cfg *config.Config, opts trackerOpts, f trackerFactories) error {
	svc, fs, cleanup, err := buildService(cfg, f)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if fs.run != nil {
		go func() {
			if err := fs.run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("feed reader stopped", "error", err.Error())
				cancel()
			}
		}()
	}

	return runTracker(ctx, opts, svc, cfg)
}

func redisAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
}

func kafkaBrokers(cfg *config.Config) []string {
	return []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
}

// instanceGroup gives every tracker process its own consumer group. Each
// instance serves its own sessions, so each must see every partition of the
// location topic.
func instanceGroup(base string) string {
	if base == "" {
		base = "driver-tracker"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "tracker"
	}
	return fmt.Sprintf("%s-%s-%s", base, host, uuid.NewString()[:8])
}

func topicOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
