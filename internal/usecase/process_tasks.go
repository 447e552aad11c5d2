package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
)

const tracerName = "github.com/V4T54L/audit-trail/internal/usecase"

// TaskHandler processes one envelope. Returning a domain.PermanentError drops
// the message; any other error is counted against the retry budget.
type TaskHandler func(ctx context.Context, env domain.Envelope) error

// WorkerConfig tunes the poll loop and the retry policy.
type WorkerConfig struct {
	MaxMessages       int32
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	HandlerTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	ErrorBackoff      time.Duration
	MaxErrorBackoff   time.Duration
}

// ProcessTasksUseCase is the consumer loop: it long-polls the task queue,
// dispatches each message of a batch concurrently to the handler registered
// for its task type, and settles the message by delete, retry or redrive.
type ProcessTasksUseCase struct {
	queue    domain.TaskQueue
	handlers map[domain.TaskType]TaskHandler
	cfg      WorkerConfig
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewProcessTasksUseCase creates the worker loop. Task types missing from
// handlers are treated as unknown and dropped.
func NewProcessTasksUseCase(queue domain.TaskQueue, handlers map[domain.TaskType]TaskHandler, cfg WorkerConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *ProcessTasksUseCase {
	if cfg.MaxMessages < 1 {
		cfg.MaxMessages = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &ProcessTasksUseCase{
		queue:    queue,
		handlers: handlers,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "worker"),
		tracer:   otel.Tracer(tracerName),
	}
}

// String names the service in supervisor logs.
func (uc *ProcessTasksUseCase) String() string {
	return "task-worker"
}

// Serve runs the poll loop until ctx is cancelled. Cancellation interrupts a
// pending long poll but never a dispatched batch: ProcessBatch detaches its
// handlers from ctx and the loop only returns once the batch has settled.
func (uc *ProcessTasksUseCase) Serve(ctx context.Context) error {
	bo := uc.newPollBackOff()
	opts := domain.ReceiveOptions{
		MaxMessages:       uc.cfg.MaxMessages,
		WaitTime:          uc.cfg.WaitTime,
		VisibilityTimeout: uc.cfg.VisibilityTimeout,
	}

	uc.logger.Info("worker started", "max_messages", opts.MaxMessages, "wait_time", opts.WaitTime, "max_retries", uc.cfg.MaxRetries)
	for {
		if ctx.Err() != nil {
			uc.logger.Info("worker stopped")
			return ctx.Err()
		}

		msgs, err := uc.queue.ReceiveBatch(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			uc.metrics.PollErrorsTotal.Inc()
			wait := bo.NextBackOff()
			uc.logger.Warn("failed to receive messages, backing off", "error", err, "backoff", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			continue
		}
		if len(msgs) == 0 {
			bo.Reset()
			continue
		}
		uc.logger.Debug("received batch", "count", len(msgs))
		outcomes := uc.ProcessBatch(ctx, msgs)

		deferred := 0
		for _, outcome := range outcomes {
			if outcome == metrics.OutcomeDeferred {
				deferred++
			}
		}
		if deferred == 0 {
			bo.Reset()
			continue
		}
		wait := bo.NextBackOff()
		uc.logger.Warn("downstream unavailable, backing off before next poll", "deferred", deferred, "backoff", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

func (uc *ProcessTasksUseCase) newPollBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if uc.cfg.ErrorBackoff > 0 {
		b.InitialInterval = uc.cfg.ErrorBackoff
	}
	if uc.cfg.MaxErrorBackoff > 0 {
		b.MaxInterval = uc.cfg.MaxErrorBackoff
	}
	b.MaxElapsedTime = 0 // never give up on the queue
	b.Reset()
	return b
}

// ProcessBatch dispatches every message concurrently and waits for all of
// them to settle. It returns the outcome per message ID.
func (uc *ProcessTasksUseCase) ProcessBatch(ctx context.Context, msgs []domain.Message) map[string]string {
	ctx = context.WithoutCancel(ctx)
	outcomes := make([]string, len(msgs))

	var g errgroup.Group
	g.SetLimit(int(uc.cfg.MaxMessages))
	for i, msg := range msgs {
		g.Go(func() error {
			outcomes[i] = uc.HandleMessage(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]string, len(msgs))
	for i, msg := range msgs {
		result[msg.ID] = outcomes[i]
	}
	return result
}

// HandleMessage runs a single message through parse, dispatch and settle, and
// returns the recorded outcome.
func (uc *ProcessTasksUseCase) HandleMessage(ctx context.Context, msg domain.Message) (outcome string) {
	env, err := domain.ParseEnvelope(msg.Body)
	if err != nil && env.TaskType == "" {
		// Left in place: the queue's own redelivery and redrive policy own it.
		uc.logger.Error("failed to parse task envelope, leaving message for redelivery", "message_id", msg.ID, "error", err)
		uc.metrics.TasksTotal.WithLabelValues("unparsed", metrics.OutcomeMalformed).Inc()
		return metrics.OutcomeMalformed
	}

	logger := uc.logger.With("message_id", msg.ID, "task_type", env.TaskType, "retries", env.Retries)

	handler, ok := uc.handlers[env.TaskType]
	if !ok {
		logger.Warn("unknown task type, dropping message", "error", domain.ErrUnknownTaskType)
		outcome = uc.drop(ctx, msg, logger, metrics.OutcomeUnknown)
		uc.metrics.TasksTotal.WithLabelValues("unknown", outcome).Inc()
		return outcome
	}
	if err != nil {
		logger.Error("invalid task envelope, dropping message", "error", err)
		outcome = uc.drop(ctx, msg, logger, metrics.OutcomeMalformed)
		uc.metrics.TasksTotal.WithLabelValues(env.TaskType.String(), outcome).Inc()
		return outcome
	}

	ctx, span := uc.tracer.Start(ctx, "worker.dispatch", trace.WithAttributes(
		attribute.String("task.type", env.TaskType.String()),
		attribute.Int("task.retries", env.Retries),
		attribute.String("messaging.message.id", msg.ID),
	))
	defer func() {
		span.SetAttributes(attribute.String("task.outcome", outcome))
		span.End()
		uc.metrics.TasksTotal.WithLabelValues(env.TaskType.String(), outcome).Inc()
	}()

	start := time.Now()
	err = uc.runHandler(ctx, handler, env)
	uc.metrics.HandlerDuration.WithLabelValues(env.TaskType.String()).Observe(time.Since(start).Seconds())

	if err == nil {
		if err := uc.queue.Delete(ctx, msg); err != nil {
			logger.Error("failed to delete processed message, it will be redelivered", "error", err)
			return metrics.OutcomeSettleFailed
		}
		logger.Debug("task processed")
		return metrics.OutcomeSucceeded
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if domain.IsPermanent(err) {
		logger.Error("task failed permanently, dropping message", "error", err)
		if err := uc.queue.Delete(ctx, msg); err != nil {
			logger.Error("failed to delete permanently failed message", "error", err)
			return metrics.OutcomeSettleFailed
		}
		return metrics.OutcomePermanentFailure
	}

	if domain.IsTransient(err) {
		// Not the task's fault: the attempt is not counted and the message
		// comes back after its visibility timeout.
		logger.Warn("task hit a transient failure, leaving message for redelivery", "error", err)
		return metrics.OutcomeDeferred
	}

	return uc.applyRetryPolicy(ctx, msg, env, err, logger)
}

func (uc *ProcessTasksUseCase) drop(ctx context.Context, msg domain.Message, logger *slog.Logger, outcome string) string {
	if err := uc.queue.Delete(ctx, msg); err != nil {
		logger.Error("failed to delete dropped message", "error", err)
		return metrics.OutcomeSettleFailed
	}
	return outcome
}

func (uc *ProcessTasksUseCase) runHandler(ctx context.Context, handler TaskHandler, env domain.Envelope) (err error) {
	if uc.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return handler(ctx, env)
}

func (uc *ProcessTasksUseCase) applyRetryPolicy(ctx context.Context, msg domain.Message, env domain.Envelope, cause error, logger *slog.Logger) string {
	attempt := env.Retries + 1
	next := env.WithRetries(attempt)

	switch Decide(attempt, uc.cfg.MaxRetries, uc.queue.DeadLetterConfigured()) {
	case DecisionRetry:
		delay := RetryDelay(uc.cfg.RetryDelay, attempt)
		logger.Warn("task failed, scheduling retry", "attempt", attempt, "max_retries", uc.cfg.MaxRetries, "delay", delay, "error", cause)
		if err := uc.queue.Retry(ctx, msg, next, delay); err != nil {
			logger.Error("failed to re-send task for retry, leaving message for redelivery", "error", err)
			return metrics.OutcomeSettleFailed
		}
		return metrics.OutcomeRetried

	case DecisionDeadLetter:
		logger.Error("task exhausted retries, moving to dead-letter queue", "attempt", attempt, "error", cause)
		if err := uc.queue.Redrive(ctx, msg, next); err != nil {
			logger.Error("failed to redrive task to dead-letter queue, leaving message in place", "error", err)
			return metrics.OutcomeSettleFailed
		}
		return metrics.OutcomeDeadLettered

	default:
		logger.Error("task exhausted retries and no dead-letter queue is configured, dropping message",
			"attempt", attempt, "error", cause, "payload", env.Payload)
		if err := uc.queue.Delete(ctx, msg); err != nil {
			logger.Error("failed to delete exhausted message", "error", err)
			return metrics.OutcomeSettleFailed
		}
		return metrics.OutcomeDropped
	}
}
