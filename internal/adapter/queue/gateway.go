package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/audit-trail/internal/domain"
)

// Client is the narrow queue-service API the gateway is built on. Queues are
// addressed by the URL (or key) returned from CreateQueue/GetQueueURL.
type Client interface {
	// CreateQueue creates the queue, treating "already exists" as success.
	CreateQueue(ctx context.Context, name string) (string, error)
	// GetQueueURL resolves a queue name, or returns domain.ErrQueueNotFound.
	GetQueueURL(ctx context.Context, name string) (string, error)
	SendMessage(ctx context.Context, queueURL string, body []byte, opts domain.SendOptions) (string, error)
	// ReceiveMessages long-polls; a timeout yields an empty slice and no error.
	ReceiveMessages(ctx context.Context, queueURL string, opts domain.ReceiveOptions) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error
	QueueStats(ctx context.Context, queueURL string) (domain.QueueStats, error)
}

// EnsureQueue returns the URL of the named queue, creating it if needed.
func EnsureQueue(ctx context.Context, client Client, name string) (string, error) {
	url, err := client.GetQueueURL(ctx, name)
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, domain.ErrQueueNotFound) {
		return "", fmt.Errorf("failed to resolve queue %s: %w", name, err)
	}

	url, err = client.CreateQueue(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to create queue %s: %w", name, err)
	}
	return url, nil
}

// Gateway implements domain.TaskQueue and domain.QueueInspector over a Client.
type Gateway struct {
	client        Client
	queueURL      string
	deadLetterURL string
	logger        *slog.Logger
}

// NewGateway creates a gateway for queueURL. An empty deadLetterURL disables
// dead-lettering.
func NewGateway(client Client, queueURL, deadLetterURL string, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:        client,
		queueURL:      queueURL,
		deadLetterURL: deadLetterURL,
		logger:        logger.With("component", "queue_gateway"),
	}
}

// Enqueue publishes env to the main queue and returns the message id.
func (g *Gateway) Enqueue(ctx context.Context, env domain.Envelope, opts domain.SendOptions) (string, error) {
	body, err := env.Marshal()
	if err != nil {
		return "", err
	}
	if opts.Attributes == nil {
		opts.Attributes = map[string]string{}
	}
	opts.Attributes["task_type"] = env.TaskType.String()

	id, err := g.client.SendMessage(ctx, g.queueURL, body, opts)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", env.TaskType, err)
	}
	return id, nil
}

func (g *Gateway) ReceiveBatch(ctx context.Context, opts domain.ReceiveOptions) ([]domain.Message, error) {
	return g.client.ReceiveMessages(ctx, g.queueURL, opts)
}

func (g *Gateway) Delete(ctx context.Context, msg domain.Message) error {
	if err := g.client.DeleteMessage(ctx, g.queueURL, msg.ReceiptHandle); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", msg.ID, err)
	}
	return nil
}

// Retry re-sends env to the main queue after delay and then deletes msg.
// If the send fails msg is left in place.
func (g *Gateway) Retry(ctx context.Context, msg domain.Message, env domain.Envelope, delay time.Duration) error {
	if _, err := g.Enqueue(ctx, env, domain.SendOptions{Delay: delay}); err != nil {
		return err
	}
	return g.Delete(ctx, msg)
}

// Redrive publishes env to the dead-letter queue and then deletes msg.
// If the publish fails msg is left in place.
func (g *Gateway) Redrive(ctx context.Context, msg domain.Message, env domain.Envelope) error {
	if g.deadLetterURL == "" {
		return domain.ErrDeadLetterNotConfigured
	}

	body, err := env.Marshal()
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"task_type":           env.TaskType.String(),
		"original_message_id": msg.ID,
		"failed_at":           time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := g.client.SendMessage(ctx, g.deadLetterURL, body, domain.SendOptions{Attributes: attrs}); err != nil {
		return fmt.Errorf("failed to publish to dead-letter queue: %w", err)
	}

	g.logger.Warn("moved task to dead-letter queue", "message_id", msg.ID, "task_type", env.TaskType, "retries", env.Retries)
	return g.Delete(ctx, msg)
}

func (g *Gateway) DeadLetterConfigured() bool {
	return g.deadLetterURL != ""
}

// Stats reports the main queue and, when configured, the dead-letter queue.
func (g *Gateway) Stats(ctx context.Context) ([]domain.QueueStats, error) {
	urls := []string{g.queueURL}
	if g.deadLetterURL != "" {
		urls = append(urls, g.deadLetterURL)
	}

	stats := make([]domain.QueueStats, 0, len(urls))
	for _, url := range urls {
		s, err := g.client.QueueStats(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to read stats for %s: %w", url, err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}
