package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/adapter/pii"
	"github.com/V4T54L/audit-trail/internal/domain"
)

// CreateLogRequest is the caller-supplied part of an audit record.
type CreateLogRequest struct {
	Action       domain.Action   `json:"action" validate:"required,oneof=create update delete view"`
	ResourceType string          `json:"resource_type" validate:"required,max=255"`
	ResourceID   string          `json:"resource_id" validate:"required,max=255"`
	IPAddress    string          `json:"ip_address" validate:"required,ip"`
	UserAgent    string          `json:"user_agent" validate:"required"`
	Message      string          `json:"message" validate:"required,max=65536"`
	Severity     domain.Severity `json:"severity" validate:"omitempty,oneof=info warning error critical"`
	BeforeState  map[string]any  `json:"before_state,omitempty"`
	AfterState   map[string]any  `json:"after_state,omitempty"`
	LogMetadata  map[string]any  `json:"log_metadata,omitempty"`
}

// CommitListener is notified after a record is durably committed.
type CommitListener interface {
	Committed(log domain.AuditLog)
}

// CreateLogUseCase is the write path: persist the record, then enqueue its
// INDEX_LOG task. An enqueue failure never fails the request; the envelope
// is spilled to the WAL (when configured) for the reconciler to replay.
type CreateLogUseCase struct {
	store    domain.AuditLogStore
	queue    domain.TaskPublisher
	wal      domain.WALRepository
	redactor *pii.Redactor
	validate *validator.Validate
	listener CommitListener
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewCreateLogUseCase creates a new CreateLogUseCase. wal and listener may be nil.
func NewCreateLogUseCase(
	store domain.AuditLogStore,
	queue domain.TaskPublisher,
	wal domain.WALRepository,
	redactor *pii.Redactor,
	listener CommitListener,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
) *CreateLogUseCase {
	return &CreateLogUseCase{
		store:    store,
		queue:    queue,
		wal:      wal,
		redactor: redactor,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		listener: listener,
		metrics:  m,
		logger:   logger.With("component", "producer"),
		tracer:   otel.Tracer(tracerName),
	}
}

// Create validates, redacts and persists a record for the caller's tenant and
// then enqueues it for indexing. The committed record is returned even when
// the enqueue fails.
func (uc *CreateLogUseCase) Create(ctx context.Context, caller domain.Identity, req CreateLogRequest) (*domain.AuditLog, error) {
	if caller.TenantID <= 0 {
		return nil, domain.ErrTenantRequired
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityInfo
	}
	if err := uc.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, verrs.Error())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	ctx, span := uc.tracer.Start(ctx, "producer.create_log", trace.WithAttributes(
		attribute.Int64("tenant.id", caller.TenantID),
		attribute.String("audit.action", string(req.Action)),
	))
	defer span.End()

	record := &domain.AuditLog{
		TenantID:     caller.TenantID,
		UserID:       caller.UserID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Message:      req.Message,
		Severity:     req.Severity,
		BeforeState:  req.BeforeState,
		AfterState:   req.AfterState,
		LogMetadata:  req.LogMetadata,
		SessionData: map[string]any{
			"id":        caller.UserID,
			"name":      caller.UserName,
			"tenant_id": caller.TenantID,
			"role":      string(caller.Role),
		},
	}

	if uc.redactor != nil {
		uc.redactor.Redact(record)
	}

	if err := uc.store.Insert(ctx, record); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to persist audit log: %w", err)
	}
	span.SetAttributes(attribute.Int64("audit.id", record.ID))

	if uc.listener != nil {
		uc.listener.Committed(*record)
	}

	uc.enqueueIndexTask(ctx, record)
	return record, nil
}

func (uc *CreateLogUseCase) enqueueIndexTask(ctx context.Context, record *domain.AuditLog) {
	env := domain.NewIndexLogEnvelope(record)

	_, err := uc.queue.Enqueue(ctx, env, domain.SendOptions{})
	if err == nil {
		uc.metrics.EnqueueTotal.WithLabelValues("enqueued").Inc()
		return
	}

	uc.metrics.EnqueueTotal.WithLabelValues("failed").Inc()
	uc.logger.Error("failed to enqueue index task, record needs reconciliation",
		"error", err, "id", record.ID, "tenant_id", record.TenantID, "created_at", record.CreatedAt)

	if uc.wal == nil {
		return
	}
	if err := uc.wal.Write(ctx, env); err != nil {
		uc.logger.Error("failed to spill index task to WAL", "error", err, "id", record.ID, "tenant_id", record.TenantID)
		return
	}
	uc.metrics.EnqueueTotal.WithLabelValues("spilled").Inc()
	uc.metrics.WALActive.Set(1)
}
