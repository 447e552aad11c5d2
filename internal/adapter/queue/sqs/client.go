package sqs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	// retentionPeriod is the SQS maximum, 14 days.
	retentionPeriod = "1209600"
	maxDelay        = 15 * time.Minute
)

// API is the subset of *sqs.Client used by Client.
type API interface {
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// NewAPI builds an SQS client. A non-nil endpoint points it at LocalStack or ElasticMQ.
func NewAPI(awsCfg aws.Config, endpoint *string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// Client adapts the SQS API to queue.Client.
type Client struct {
	api               API
	visibilityTimeout time.Duration
	logger            *slog.Logger
}

// NewClient creates a Client. visibilityTimeout is applied to queues it creates.
func NewClient(api API, visibilityTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		api:               api,
		visibilityTimeout: visibilityTimeout,
		logger:            logger.With("component", "sqs_client"),
	}
}

func (c *Client) CreateQueue(ctx context.Context, name string) (string, error) {
	out, err := c.api.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(types.QueueAttributeNameMessageRetentionPeriod): retentionPeriod,
			string(types.QueueAttributeNameVisibilityTimeout):      strconv.Itoa(int(c.visibilityTimeout.Seconds())),
		},
	})
	if err != nil {
		var exists *types.QueueNameExists
		if errors.As(err, &exists) {
			// Created concurrently or with different attributes.
			return c.GetQueueURL(ctx, name)
		}
		return "", fmt.Errorf("sqs create queue %s: %w", name, err)
	}

	c.logger.Info("created queue", "name", name, "url", aws.ToString(out.QueueUrl))
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) GetQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var missing *types.QueueDoesNotExist
		if errors.As(err, &missing) {
			return "", fmt.Errorf("%w: %s", domain.ErrQueueNotFound, name)
		}
		return "", fmt.Errorf("sqs get queue url %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) SendMessage(ctx context.Context, queueURL string, body []byte, opts domain.SendOptions) (string, error) {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	}
	if opts.Delay > 0 {
		delay := min(opts.Delay, maxDelay)
		in.DelaySeconds = int32(delay / time.Second)
	}
	if len(opts.Attributes) > 0 {
		in.MessageAttributes = make(map[string]types.MessageAttributeValue, len(opts.Attributes))
		for k, v := range opts.Attributes {
			in.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := c.api.SendMessage(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (c *Client) ReceiveMessages(ctx context.Context, queueURL string, opts domain.ReceiveOptions) ([]domain.Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   opts.MaxMessages,
		WaitTimeSeconds:       int32(opts.WaitTime / time.Second),
		VisibilityTimeout:     int32(opts.VisibilityTimeout / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, domain.Message{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

func (c *Client) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

func (c *Client) QueueStats(ctx context.Context, queueURL string) (domain.QueueStats, error) {
	out, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("sqs get queue attributes: %w", err)
	}

	return domain.QueueStats{
		Name:      queueName(queueURL),
		Available: attrInt(out.Attributes, types.QueueAttributeNameApproximateNumberOfMessages),
		InFlight:  attrInt(out.Attributes, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		Delayed:   attrInt(out.Attributes, types.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

func attrInt(attrs map[string]string, name types.QueueAttributeName) int64 {
	n, _ := strconv.ParseInt(attrs[string(name)], 10, 64)
	return n
}

func queueName(queueURL string) string {
	if i := strings.LastIndex(queueURL, "/"); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}
