package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/pkg/config"
)

const breakerName = "opensearch"

// Sink implements domain.IndexSink on OpenSearch. Every call runs through a
// circuit breaker and every failure wraps domain.ErrSearchUnavailable.
type Sink struct {
	client  *opensearchapi.Client
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	logger  *slog.Logger
}

// NewSink creates a Sink for the cluster at cfg.URL.
func NewSink(cfg config.SearchConfig, logger *slog.Logger) (*Sink, error) {
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{cfg.URL},
			Transport: http.DefaultTransport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	logger = logger.With("component", "search_sink")
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A rejected request proves the cluster is up.
		IsSuccessful: func(err error) bool {
			return err == nil || isRejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Sink{
		client:  client,
		cb:      cb,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// EnsureIndex creates index with mapping unless it already exists.
func (s *Sink) EnsureIndex(ctx context.Context, index string, mapping map[string]any) error {
	_, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		resp, err := s.client.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{index}})
		if resp != nil && resp.StatusCode == http.StatusOK {
			return nil, nil
		}
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("failed to check index %s: %w", index, err)
		}

		body, err := json.Marshal(mapping)
		if err != nil {
			return nil, err
		}
		_, err = s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
			Index: index,
			Body:  bytes.NewReader(body),
		})
		if err != nil && !isAlreadyExists(err) {
			return nil, fmt.Errorf("failed to create index %s: %w", index, err)
		}
		s.logger.Info("created search index", "index", index)
		return nil, nil
	})
	return err
}

// Upsert writes doc under docID, replacing any previous version.
func (s *Sink) Upsert(ctx context.Context, index, docID string, doc domain.IndexedDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", docID, err)
	}

	_, err = s.execute(ctx, func(ctx context.Context) (any, error) {
		_, err := s.client.Index(ctx, opensearchapi.IndexReq{
			Index:      index,
			DocumentID: docID,
			Body:       bytes.NewReader(body),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to index document %s: %w", docID, err)
		}
		return nil, nil
	})
	return err
}

// Query runs a tenant-scoped search built by BuildQuery.
func (s *Sink) Query(ctx context.Context, index string, q domain.SearchQuery) (domain.SearchResult, error) {
	body, err := json.Marshal(BuildQuery(q))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to marshal query: %w", err)
	}

	out, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
			Indices: []string{index},
			Body:    bytes.NewReader(body),
		})
		if err != nil {
			return nil, fmt.Errorf("search request failed: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return domain.SearchResult{}, err
	}

	resp := out.(*opensearchapi.SearchResp)
	result := domain.SearchResult{
		Total: int64(resp.Hits.Total.Value),
		Page:  q.Page,
		Limit: q.Limit,
		Hits:  make([]domain.SearchHit, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		var doc domain.IndexedDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return domain.SearchResult{}, fmt.Errorf("%w: undecodable hit %s: %v", domain.ErrSearchUnavailable, h.ID, err)
		}
		result.Hits = append(result.Hits, domain.SearchHit{Score: float64(h.Score), Document: doc})
	}
	return result, nil
}

func (s *Sink) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if isRejected(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrSearchUnavailable, domain.ErrTransient, err)
	}
	return out, nil
}

// BuildQuery composes the search body. The tenant term is always the first
// must clause; text matches message and metadata; the rest are filters.
func BuildQuery(q domain.SearchQuery) map[string]any {
	must := []any{
		map[string]any{"term": map[string]any{"tenant_id": strconv.FormatInt(q.TenantID, 10)}},
	}
	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":    q.Text,
				"fields":   []string{"message", "log_metadata"},
				"operator": "and",
			},
		})
	}

	var filter []any
	terms := []struct {
		field string
		value string
	}{
		{"user_id", q.UserID},
		{"action", string(q.Action)},
		{"resource_type", q.ResourceType},
		{"severity", string(q.Severity)},
	}
	for _, t := range terms {
		if t.value != "" {
			filter = append(filter, map[string]any{"term": map[string]any{t.field: t.value}})
		}
	}
	if q.Start != nil || q.End != nil {
		r := map[string]any{}
		if q.Start != nil {
			r["gte"] = q.Start.UTC().Format(time.RFC3339Nano)
		}
		if q.End != nil {
			r["lte"] = q.End.UTC().Format(time.RFC3339Nano)
		}
		filter = append(filter, map[string]any{"range": map[string]any{"created_at": r}})
	}

	boolQuery := map[string]any{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"from":  (page - 1) * limit,
		"size":  limit,
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{"created_at": "desc"},
		},
	}
}

// isRejected reports whether the cluster answered with a client error, such
// as a mapping conflict or a query outside the result window. Throttling (429)
// is not a rejection.
func isRejected(err error) bool {
	var structErr *opensearch.StructError
	if !errors.As(err, &structErr) {
		return false
	}
	return structErr.Status >= 400 && structErr.Status < 500 && structErr.Status != http.StatusTooManyRequests
}

func isAlreadyExists(err error) bool {
	var structErr *opensearch.StructError
	return errors.As(err, &structErr) && structErr.Err.Type == "resource_already_exists_exception"
}
