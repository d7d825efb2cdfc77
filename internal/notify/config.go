package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultWorkers         = 2
	defaultQueueSize       = 256
	defaultChannel         = "points:notifications"
	defaultDeliveryTimeout = 5 * time.Second
	maxWorkers             = 64
)

// Config controls the notification queue and its redis sink.
type Config struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
	Channel         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

// Validate applies defaults and rejects values the dispatcher cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.Workers < 0 || cfg.Workers > maxWorkers {
		return fmt.Errorf("notify workers must be between 1 and %d", maxWorkers)
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("notify queue size must be positive")
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}
	return nil
}

// RedisEnabled reports whether a redis address was configured.
func (cfg Config) RedisEnabled() bool {
	return strings.TrimSpace(cfg.RedisAddr) != ""
}

// NewRedisClient builds the client used by RedisSink.
func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
