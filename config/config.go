package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                       string `yaml:"host"`
	Port                       int    `yaml:"port"`
	DriverLocationTopicName    string `yaml:"driver_location_topic_name"`
	DeliveryCompletedTopicName string `yaml:"delivery_completed_topic_name"`
	// ConsumerGroup is a prefix; each process joins its own group under it.
	ConsumerGroup       string `yaml:"consumer_group"`
	MaxRecordAgeSeconds int    `yaml:"max_record_age_seconds"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TrackerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`

	// FeedTransport selects the live feed: "memory" | "redis" | "kafka".
	FeedTransport     string `yaml:"feed_transport"`
	FeedChannelPrefix string `yaml:"feed_channel_prefix"`

	UpdateIntervalMillis int     `yaml:"update_interval_millis"`
	StepsPerSegment      int     `yaml:"steps_per_segment"`
	Damping              float64 `yaml:"damping"`

	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	PollTimeoutSeconds      int `yaml:"poll_timeout_seconds"`
	PollRateLimitPerMinute  int `yaml:"poll_rate_limit_per_minute"`
	PositionCacheTTLSeconds int `yaml:"position_cache_ttl_seconds"`

	OrdersBaseURL string `yaml:"orders_base_url"`
	OrdersAPIKey  string `yaml:"orders_api_key"`
	// OrdersMode is "http" or "fake".
	OrdersMode string `yaml:"orders_mode"`

	CallsSupported bool `yaml:"calls_supported"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
