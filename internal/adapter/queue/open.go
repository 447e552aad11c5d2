package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/audit-trail/internal/adapter/awsconf"
	redisqueue "github.com/V4T54L/audit-trail/internal/adapter/queue/redis"
	sqsqueue "github.com/V4T54L/audit-trail/internal/adapter/queue/sqs"
	"github.com/V4T54L/audit-trail/internal/pkg/config"
)

// Open builds the configured backend, ensures the main queue (and the
// dead-letter queue when given by name) and returns a ready Gateway.
// The returned close function releases backend connections.
func Open(ctx context.Context, cfg *config.Config, consumer string, logger *slog.Logger) (*Gateway, func() error, error) {
	var (
		client  Client
		closeFn = func() error { return nil }
	)

	switch cfg.Queue.Backend {
	case config.QueueBackendSQS:
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		client = sqsqueue.NewClient(sqsqueue.NewAPI(awsCfg, awsconf.Endpoint(cfg.AWS)), cfg.Worker.VisibilityTimeout, logger)
	case config.QueueBackendRedis:
		opts, err := redis.ParseURL(cfg.Queue.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		client = redisqueue.NewClient(rdb, cfg.Queue.RedisGroup, consumer, logger)
		closeFn = rdb.Close
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}

	queueURL, err := EnsureQueue(ctx, client, cfg.Queue.Name)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	deadLetterURL := cfg.Queue.DeadLetterURL
	if deadLetterURL != "" && !strings.HasPrefix(deadLetterURL, "http") {
		if deadLetterURL, err = EnsureQueue(ctx, client, deadLetterURL); err != nil {
			_ = closeFn()
			return nil, nil, err
		}
	}

	logger.Info("task queue ready", "backend", cfg.Queue.Backend, "queue", queueURL, "dead_letter", deadLetterURL)
	return NewGateway(client, queueURL, deadLetterURL, logger), closeFn, nil
}
