package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sinkNameLog   = "log"
	sinkNameRedis = "redis"
)

// LogSink writes every notification to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (sink *LogSink) Name() string {
	return sinkNameLog
}

func (sink *LogSink) Deliver(_ context.Context, notification ledger.Notification) error {
	fields := []zap.Field{
		zap.String("user_id", notification.UserID.String()),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	}
	for key, value := range notification.Data {
		fields = append(fields, zap.String("data."+key, value))
	}
	sink.logger.Info("notification", fields...)
	return nil
}

// Publisher is the subset of the redis client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes JSON-encoded notifications on a pub/sub channel.
type RedisSink struct {
	publisher Publisher
	channel   string
}

// NewRedisSink constructs a RedisSink publishing on channel.
func NewRedisSink(publisher Publisher, channel string) *RedisSink {
	return &RedisSink{publisher: publisher, channel: channel}
}

func (sink *RedisSink) Name() string {
	return sinkNameRedis
}

func (sink *RedisSink) Deliver(ctx context.Context, notification ledger.Notification) error {
	payload, err := json.Marshal(newMessage(notification))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := sink.publisher.Publish(ctx, sink.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", sink.channel, err)
	}
	return nil
}

// Message is the wire form published to redis subscribers.
type Message struct {
	UserID  string            `json:"userId"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

func newMessage(notification ledger.Notification) Message {
	return Message{
		UserID:  notification.UserID.String(),
		Title:   notification.Title,
		Message: notification.Message,
		Data:    notification.Data,
	}
}
