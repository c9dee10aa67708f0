// Package redis provides the Redis stream relay sink.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
)

// RecordField is the stream entry field holding the encoded record.
const RecordField = "record"

// Client appends relay records to one stream per topic
type Client struct {
	rdb          *redis.Client
	streamPrefix string
	maxLen       int64
	log          *log.Logger
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(cfg *config.RedisConfig, logger *log.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis relay sink connected to %s", cfg.Address)

	return &Client{
		rdb:          rdb,
		streamPrefix: cfg.StreamPrefix,
		maxLen:       cfg.MaxLen,
		log:          logger,
	}, nil
}

// Name identifies the sink in logs.
func (c *Client) Name() string { return "redis" }

// Stream returns the stream key for a relay topic.
func (c *Client) Stream(topic string) string {
	return c.streamPrefix + ":" + topic
}

// Publish appends payload to the topic's stream, trimming it approximately
// to the configured length.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: c.Stream(topic),
		Values: []any{RecordField, payload},
	}
	if c.maxLen > 0 {
		args.MaxLen = c.maxLen
		args.Approx = true
	}

	if err := c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", args.Stream, err)
	}
	return nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.rdb.Close()
}
