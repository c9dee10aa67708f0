package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyStream is returned by Latest when a topic has no records yet.
var ErrEmptyStream = errors.New("stream is empty")

// Entry is one relayed record as stored in a stream.
type Entry struct {
	ID     string
	Record []byte
}

// Latest returns the most recent record relayed for topic.
func (c *Client) Latest(ctx context.Context, topic string) (Entry, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, c.Stream(topic), "+", "-", 1).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read stream %s: %w", c.Stream(topic), err)
	}
	if len(msgs) == 0 {
		return Entry{}, ErrEmptyStream
	}
	return toEntry(msgs[0])
}

// Len reports how many records the topic's stream currently holds.
func (c *Client) Len(ctx context.Context, topic string) (int64, error) {
	n, err := c.rdb.XLen(ctx, c.Stream(topic)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure stream %s: %w", c.Stream(topic), err)
	}
	return n, nil
}

// LogStreams reports what each topic's stream already holds, so a restart
// shows where relaying resumes.
func (c *Client) LogStreams(ctx context.Context, topics []string) {
	for _, topic := range topics {
		n, err := c.Len(ctx, topic)
		if err != nil {
			c.log.Warn("%v", err)
			continue
		}
		if n == 0 {
			c.log.Info("Stream %s is empty", c.Stream(topic))
			continue
		}
		latest, err := c.Latest(ctx, topic)
		if err != nil {
			c.log.Warn("%v", err)
			continue
		}
		c.log.Info("Stream %s holds %d records, latest %s", c.Stream(topic), n, latest.ID)
	}
}

func toEntry(msg redis.XMessage) (Entry, error) {
	raw, ok := msg.Values[RecordField]
	if !ok {
		return Entry{}, fmt.Errorf("entry has no %q field", RecordField)
	}
	s, ok := raw.(string)
	if !ok {
		return Entry{}, fmt.Errorf("field %q has type %T", RecordField, raw)
	}
	return Entry{ID: msg.ID, Record: []byte(s)}, nil
}
