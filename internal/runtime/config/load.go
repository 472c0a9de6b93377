package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RESOURCEFLOW_"

// FileEnvVar names the environment variable pointing at an optional YAML file.
const FileEnvVar = EnvPrefix + "CONFIG"

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ServiceName:            "resourceflow",
		LogLevel:               "info",
		HTTPAddress:            ":8080",
		ShutdownTimeout:        10 * time.Second,
		StoreBackend:           "memory",
		PostgresAutoMigrate:    true,
		PubSubSystem:           "channel",
		ConsumerGroup:          "resourceflow-group",
		EventsTopic:            "resource-events",
		DeadLetterTopic:        "resource-events-dlq",
		RetryMaxRetries:        3,
		RetryInitialInterval:   time.Second,
		RetryMaxInterval:       16 * time.Second,
		DeadLetterAfterRetries: true,
		CacheSize:              1024,
		CacheTTL:               10 * time.Minute,
		DedupSize:              10000,
		DedupTTL:               24 * time.Hour,
		MetricsEnabled:         true,
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// RESOURCEFLOW_CONFIG and RESOURCEFLOW_* environment variables, in that order,
// and validates the result.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(FileEnvVar)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes a YAML document over the defaults without consulting the
// environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.ServiceName = envString("SERVICE_NAME", c.ServiceName)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.HTTPAddress = envString("HTTP_ADDRESS", c.HTTPAddress)
	c.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, collect)

	c.StoreBackend = envString("STORE_BACKEND", c.StoreBackend)
	c.PostgresURL = envString("POSTGRES_URL", c.PostgresURL)
	c.PostgresAutoMigrate = envBool("POSTGRES_AUTO_MIGRATE", c.PostgresAutoMigrate, collect)

	c.PubSubSystem = envString("PUBSUB_SYSTEM", c.PubSubSystem)
	c.KafkaBrokers = envList("KAFKA_BROKERS", c.KafkaBrokers)
	c.ConsumerGroup = envString("CONSUMER_GROUP", c.ConsumerGroup)
	c.DLQConsumerGroup = envString("DLQ_CONSUMER_GROUP", c.DLQConsumerGroup)
	c.RabbitMQURL = envString("RABBITMQ_URL", c.RabbitMQURL)
	c.NATSURL = envString("NATS_URL", c.NATSURL)
	c.AWSRegion = envString("AWS_REGION", c.AWSRegion)
	c.AWSAccountID = envString("AWS_ACCOUNT_ID", c.AWSAccountID)
	c.AWSAccessKeyID = envString("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID)
	c.AWSSecretAccessKey = envString("AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey)
	c.AWSEndpoint = envString("AWS_ENDPOINT", c.AWSEndpoint)

	c.EventsTopic = envString("EVENTS_TOPIC", c.EventsTopic)
	c.DeadLetterTopic = envString("DEAD_LETTER_TOPIC", c.DeadLetterTopic)
	c.RetryMaxRetries = envInt("RETRY_MAX_RETRIES", c.RetryMaxRetries, collect)
	c.RetryInitialInterval = envDuration("RETRY_INITIAL_INTERVAL", c.RetryInitialInterval, collect)
	c.RetryMaxInterval = envDuration("RETRY_MAX_INTERVAL", c.RetryMaxInterval, collect)
	c.DeadLetterAfterRetries = envBool("DEAD_LETTER_AFTER_RETRIES", c.DeadLetterAfterRetries, collect)

	c.CacheSize = envInt("CACHE_SIZE", c.CacheSize, collect)
	c.CacheTTL = envDuration("CACHE_TTL", c.CacheTTL, collect)
	c.DedupSize = envInt("DEDUP_SIZE", c.DedupSize, collect)
	c.DedupTTL = envDuration("DEDUP_TTL", c.DedupTTL, collect)

	c.MetricsEnabled = envBool("METRICS_ENABLED", c.MetricsEnabled, collect)
	c.ExternalBaseURL = envString("EXTERNAL_BASE_URL", c.ExternalBaseURL)

	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func envList(key string, def []string) []string {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int, collect func(error)) int {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err))
		return def
	}
	return i
}

func envBool(key string, def bool, collect func(error)) bool {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err))
		return def
	}
	return b
}

func envDuration(key string, def time.Duration, collect func(error)) time.Duration {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err))
		return def
	}
	return d
}
