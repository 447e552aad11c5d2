package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const bodyField = "body"

// Client implements queue.Client on Redis Streams. A queue is a stream key
// read through a single consumer group; the queue "URL" is the stream key.
// Unacknowledged entries idle longer than the visibility timeout are
// reclaimed on the next receive. Send delays are not supported.
type Client struct {
	rdb      *redis.Client
	group    string
	consumer string
	logger   *slog.Logger
}

// NewClient creates a Client that reads as consumer within group.
func NewClient(rdb *redis.Client, group, consumer string, logger *slog.Logger) *Client {
	return &Client{
		rdb:      rdb,
		group:    group,
		consumer: consumer,
		logger:   logger.With("component", "redis_queue", "consumer", consumer),
	}
}

func (c *Client) CreateQueue(ctx context.Context, name string) (string, error) {
	if err := c.setupConsumerGroup(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// GetQueueURL reports a stream as found once it exists, making sure the
// consumer group is present.
func (c *Client) GetQueueURL(ctx context.Context, name string) (string, error) {
	n, err := c.rdb.Exists(ctx, name).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check stream %s: %w", name, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrQueueNotFound, name)
	}
	if err := c.setupConsumerGroup(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

func (c *Client) setupConsumerGroup(ctx context.Context, stream string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !isRedisBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, stream string, body []byte, opts domain.SendOptions) (string, error) {
	if opts.Delay > 0 {
		c.logger.Debug("redis streams do not support delayed delivery, sending immediately", "delay", opts.Delay)
	}

	values := make(map[string]interface{}, len(opts.Attributes)+1)
	for k, v := range opts.Attributes {
		values[k] = v
	}
	values[bodyField] = body

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return id, nil
}

// ReceiveMessages first reclaims entries whose previous holder exceeded the
// visibility timeout, then reads new entries.
func (c *Client) ReceiveMessages(ctx context.Context, stream string, opts domain.ReceiveOptions) ([]domain.Message, error) {
	count := int64(opts.MaxMessages)
	if count <= 0 {
		count = 1
	}

	var msgs []domain.Message
	if opts.VisibilityTimeout > 0 {
		claimed, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  opts.VisibilityTimeout,
			Start:    "0-0",
			Count:    count,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to XAUTOCLAIM from redis: %w", err)
		}
		msgs = toMessages(claimed)
		if len(msgs) > 0 {
			c.logger.Info("reclaimed idle messages", "count", len(msgs))
		}
	}

	remaining := count - int64(len(msgs))
	if remaining <= 0 {
		return msgs, nil
	}

	// A negative Block omits BLOCK; zero would block forever.
	block := opts.WaitTime
	if block <= 0 || len(msgs) > 0 {
		block = -1
	}

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{stream, ">"},
		Count:    remaining,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return msgs, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}

	for _, s := range streams {
		msgs = append(msgs, toMessages(s.Messages)...)
	}
	return msgs, nil
}

// DeleteMessage acknowledges and removes the entry.
func (c *Client) DeleteMessage(ctx context.Context, stream, id string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, c.group, id)
		pipe.XDel(ctx, stream, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to XACK message in redis: %w", err)
	}
	return nil
}

// QueueStats treats pending entries as in flight.
func (c *Client) QueueStats(ctx context.Context, stream string) (domain.QueueStats, error) {
	length, err := c.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("failed to XLEN stream %s: %w", stream, err)
	}

	var pending int64
	summary, err := c.rdb.XPending(ctx, stream, c.group).Result()
	switch {
	case err == nil:
		pending = summary.Count
	case isNoGroupError(err):
	default:
		return domain.QueueStats{}, fmt.Errorf("failed to get pending summary for stream %s: %w", stream, err)
	}

	return domain.QueueStats{
		Name:      stream,
		Available: max(length-pending, 0),
		InFlight:  pending,
	}, nil
}

func toMessages(entries []redis.XMessage) []domain.Message {
	msgs := make([]domain.Message, 0, len(entries))
	for _, e := range entries {
		body, _ := e.Values[bodyField].(string)
		msgs = append(msgs, domain.Message{
			ID:            e.ID,
			Body:          []byte(body),
			ReceiptHandle: e.ID,
		})
	}
	return msgs
}

func isRedisBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}
