// Package events turns persisted messages into raw events and moves them over durable
// Redis Streams queues.
package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisPublisher publishes Watermill messages to Redis Streams
func NewRedisPublisher(client redis.UniversalClient, logger zerolog.Logger) (message.Publisher, error) {
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	return pub, nil
}

// NewRedisSubscriber consumes a stream as one member of a consumer group. Messages stay
// pending in the group until acked, so a crash or nack means redelivery.
func NewRedisSubscriber(client redis.UniversalClient, group, consumer string, logger zerolog.Logger) (message.Subscriber, error) {
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}
	return sub, nil
}

// EnsureGroup creates the consumer group for stream, starting from the beginning of the
// stream so events published before the first worker start are not skipped.
func EnsureGroup(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}
