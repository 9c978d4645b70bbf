package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  driver_location_topic_name: "driver.location"
  delivery_completed_topic_name: "delivery.completed"
redis:
  host: "localhost"
  port: 6379
tracker:
  grpc_addr: ":50051"
  http_addr: ":8080"
  feed_transport: "kafka"
  update_interval_millis: 5000
  steps_per_segment: 10
  damping: 0.98
  poll_interval_seconds: 10
  orders_mode: "fake"
  calls_supported: true
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "driver.location", cfg.Kafka.DriverLocationTopicName)
	require.Equal(t, "delivery.completed", cfg.Kafka.DeliveryCompletedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.Tracker.HTTPAddr)
	require.Equal(t, "kafka", cfg.Tracker.FeedTransport)
	require.Equal(t, 10, cfg.Tracker.StepsPerSegment)
	require.Equal(t, 0.98, cfg.Tracker.Damping)
	require.True(t, cfg.Tracker.CallsSupported)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tracker: [unterminated"), 0o600))
	_, err = LoadConfig(p)
	require.Error(t, err)
}
