package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamAdder is the slice of the redis client used to publish notifications
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamChannel publishes notifications to a Redis stream
type RedisStreamChannel struct {
	client StreamAdder
	stream string
	maxLen int64
}

// NewRedisStreamChannel creates a channel writing to stream, trimmed to about maxLen entries
func NewRedisStreamChannel(client StreamAdder, stream string, maxLen int64) *RedisStreamChannel {
	return &RedisStreamChannel{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Send appends the notification to the stream
func (r *RedisStreamChannel) Send(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"kind":     string(n.Kind),
			"order_id": strconv.FormatUint(uint64(n.OrderID), 10),
			"data":     string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add to stream %s: %w", r.stream, err)
	}
	return nil
}

// LogChannel writes notifications to the application log. Used when no
// broker is configured.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a channel that logs every notification
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Send logs the notification at info level
func (l *LogChannel) Send(ctx context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.Uint("order_id", n.OrderID),
		zap.String("order_number", n.OrderNumber),
		zap.String("order_title", n.OrderTitle),
		zap.String("customer", n.Customer),
		zap.Any("fields", n.Fields))
	return nil
}

// MultiChannel fans a notification out to several channels
type MultiChannel []NotificationChannel

// Send delivers to every channel and joins the errors
func (m MultiChannel) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, ch := range m {
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
