package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/audit-trail/internal/domain"
)

type sentMessage struct {
	queueURL string
	body     []byte
	opts     domain.SendOptions
}

type fakeClient struct {
	mu       sync.Mutex
	queues   map[string]string
	sent     []sentMessage
	deleted  []string
	sendErrs map[string]error
	getErr   error
	stats    map[string]domain.QueueStats
	nextID   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		queues:   map[string]string{},
		sendErrs: map[string]error{},
		stats:    map[string]domain.QueueStats{},
	}
}

func (f *fakeClient) CreateQueue(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "http://queue.local/" + name
	f.queues[name] = url
	return url, nil
}

func (f *fakeClient) GetQueueURL(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	url, ok := f.queues[name]
	if !ok {
		return "", domain.ErrQueueNotFound
	}
	return url, nil
}

func (f *fakeClient) SendMessage(_ context.Context, queueURL string, body []byte, opts domain.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[queueURL]; err != nil {
		return "", err
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{queueURL: queueURL, body: body, opts: opts})
	return "msg-" + strconv.Itoa(f.nextID), nil
}

func (f *fakeClient) ReceiveMessages(_ context.Context, _ string, _ domain.ReceiveOptions) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, _ string, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandle)
	return nil
}

func (f *fakeClient) QueueStats(_ context.Context, queueURL string) (domain.QueueStats, error) {
	s, ok := f.stats[queueURL]
	if !ok {
		return domain.QueueStats{}, errors.New("no such queue")
	}
	return s, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureQueue_CreatesOnce(t *testing.T) {
	client := newFakeClient()

	url, err := EnsureQueue(context.Background(), client, "audit-log-queue")
	require.NoError(t, err)
	assert.Equal(t, "http://queue.local/audit-log-queue", url)

	again, err := EnsureQueue(context.Background(), client, "audit-log-queue")
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Len(t, client.queues, 1)
}

func TestEnsureQueue_LookupFailure(t *testing.T) {
	client := newFakeClient()
	client.getErr = errors.New("access denied")

	_, err := EnsureQueue(context.Background(), client, "audit-log-queue")
	require.Error(t, err)
	assert.Empty(t, client.queues)
}

func TestGateway_EnqueueTagsTaskType(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, "main", "", discardLogger())

	env := domain.NewEnvelope(domain.TaskIndexLog, map[string]any{"id": 1})
	id, err := gw.Enqueue(context.Background(), env, domain.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "main", client.sent[0].queueURL)
	assert.Equal(t, "INDEX_LOG", client.sent[0].opts.Attributes["task_type"])

	parsed, err := domain.ParseEnvelope(client.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskIndexLog, parsed.TaskType)
	assert.Equal(t, 0, parsed.Retries)
}

func TestGateway_RetryPublishesThenDeletes(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, "main", "", discardLogger())
	msg := domain.Message{ID: "m1", ReceiptHandle: "rh-1"}
	env := domain.NewEnvelope(domain.TaskIndexLog, map[string]any{"id": 1}).WithRetries(2)

	require.NoError(t, gw.Retry(context.Background(), msg, env, 4*time.Second))

	require.Len(t, client.sent, 1)
	assert.Equal(t, 4*time.Second, client.sent[0].opts.Delay)
	parsed, err := domain.ParseEnvelope(client.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Retries)
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

func TestGateway_RetrySendFailureKeepsMessage(t *testing.T) {
	client := newFakeClient()
	client.sendErrs["main"] = errors.New("throttled")
	gw := NewGateway(client, "main", "", discardLogger())

	err := gw.Retry(context.Background(), domain.Message{ID: "m1", ReceiptHandle: "rh-1"},
		domain.NewEnvelope(domain.TaskIndexLog, map[string]any{}), 0)
	require.Error(t, err)
	assert.Empty(t, client.deleted)
}

func TestGateway_Redrive(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		client := newFakeClient()
		gw := NewGateway(client, "main", "", discardLogger())
		assert.False(t, gw.DeadLetterConfigured())

		err := gw.Redrive(context.Background(), domain.Message{ID: "m1", ReceiptHandle: "rh-1"},
			domain.NewEnvelope(domain.TaskIndexLog, map[string]any{}))
		assert.ErrorIs(t, err, domain.ErrDeadLetterNotConfigured)
		assert.Empty(t, client.sent)
		assert.Empty(t, client.deleted)
	})

	t.Run("publishes then deletes", func(t *testing.T) {
		client := newFakeClient()
		gw := NewGateway(client, "main", "dlq", discardLogger())
		assert.True(t, gw.DeadLetterConfigured())

		env := domain.NewEnvelope(domain.TaskIndexLog, map[string]any{"id": 1}).WithRetries(3)
		require.NoError(t, gw.Redrive(context.Background(), domain.Message{ID: "m1", ReceiptHandle: "rh-1"}, env))

		require.Len(t, client.sent, 1)
		assert.Equal(t, "dlq", client.sent[0].queueURL)
		assert.Equal(t, "m1", client.sent[0].opts.Attributes["original_message_id"])
		parsed, err := domain.ParseEnvelope(client.sent[0].body)
		require.NoError(t, err)
		assert.Equal(t, 3, parsed.Retries)
		assert.Equal(t, []string{"rh-1"}, client.deleted)
	})

	t.Run("unreachable dead-letter queue keeps message", func(t *testing.T) {
		client := newFakeClient()
		client.sendErrs["dlq"] = errors.New("connection refused")
		gw := NewGateway(client, "main", "dlq", discardLogger())

		err := gw.Redrive(context.Background(), domain.Message{ID: "m1", ReceiptHandle: "rh-1"},
			domain.NewEnvelope(domain.TaskIndexLog, map[string]any{}))
		require.Error(t, err)
		assert.Empty(t, client.deleted)
	})
}

func TestGateway_Stats(t *testing.T) {
	client := newFakeClient()
	client.stats["main"] = domain.QueueStats{Name: "main", Available: 5, InFlight: 2}
	client.stats["dlq"] = domain.QueueStats{Name: "dlq", Available: 1}

	stats, err := NewGateway(client, "main", "dlq", discardLogger()).Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(5), stats[0].Available)
	assert.Equal(t, int64(2), stats[0].InFlight)
	assert.Equal(t, "dlq", stats[1].Name)

	stats, err = NewGateway(client, "main", "", discardLogger()).Stats(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, 1)
}
