package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/audit-trail/internal/adapter/metrics"
	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	// maxResultWindow is the engine's default index.max_result_window;
	// from+size beyond it is rejected by the cluster.
	maxResultWindow = 10000
)

// SearchLogsUseCase runs tenant-scoped full-text searches against the index.
type SearchLogsUseCase struct {
	sink    domain.IndexSink
	index   string
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewSearchLogsUseCase creates a new SearchLogsUseCase.
func NewSearchLogsUseCase(sink domain.IndexSink, index string, m *metrics.PipelineMetrics, logger *slog.Logger) *SearchLogsUseCase {
	return &SearchLogsUseCase{
		sink:    sink,
		index:   index,
		metrics: m,
		logger:  logger.With("component", "search"),
		tracer:  otel.Tracer(tracerName),
	}
}

// Search returns ranked hits for the caller's tenant. Any sink failure is
// reported as domain.ErrSearchUnavailable and never as an empty result.
func (uc *SearchLogsUseCase) Search(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	if q.TenantID <= 0 {
		return domain.SearchResult{}, domain.ErrTenantRequired
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}
	if q.Page > maxResultWindow/q.Limit {
		return domain.SearchResult{}, fmt.Errorf("%w: page %d with limit %d is beyond the first %d results",
			domain.ErrInvalidRequest, q.Page, q.Limit, maxResultWindow)
	}

	ctx, span := uc.tracer.Start(ctx, "search.query", trace.WithAttributes(
		attribute.Int64("tenant.id", q.TenantID),
		attribute.Bool("search.has_text", q.Text != ""),
	))
	defer span.End()

	result, err := uc.sink.Query(ctx, uc.index, q)
	if err != nil {
		span.RecordError(err)
		uc.metrics.SearchTotal.WithLabelValues("error").Inc()
		uc.logger.Warn("search failed", "error", err, "tenant_id", q.TenantID)
		if !errors.Is(err, domain.ErrSearchUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
		}
		return domain.SearchResult{}, err
	}

	uc.metrics.SearchTotal.WithLabelValues("ok").Inc()
	result.Page, result.Limit = q.Page, q.Limit
	return result, nil
}
